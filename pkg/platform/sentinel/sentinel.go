package sentinel

import "errors"

// Sentinel errors for storage facts. Record stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: nothing is stored at the path
//   - ErrAlreadyExists: a create-if-absent write found an existing record
//   - ErrConflict: an atomic read-modify-write lost every retry to concurrent writers
//   - ErrUnavailable: the backend could not be reached
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrUnavailable   = errors.New("unavailable")
)
