package domain

import (
	"strings"
	"unicode"

	dErrors "homechef/pkg/domain-errors"
)

// maxIDLength bounds identifiers that become record-store path segments.
const maxIDLength = 128

// UserID identifies a customer or a meal provider. Identity-provider user ids
// are opaque strings, so the type only guarantees they are safe path segments.
type UserID string

// ItemID identifies a menu item.
type ItemID string

// OrderID identifies an order record.
type OrderID string

func (id UserID) String() string  { return string(id) }
func (id UserID) IsNil() bool     { return id == "" }
func (id ItemID) String() string  { return string(id) }
func (id ItemID) IsNil() bool     { return id == "" }
func (id OrderID) String() string { return string(id) }
func (id OrderID) IsNil() bool    { return id == "" }

// ParseUserID validates a user id at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	v, err := parseSegment("user id", s)
	return UserID(v), err
}

// ParseItemID validates an item id at a trust boundary.
func ParseItemID(s string) (ItemID, error) {
	v, err := parseSegment("item id", s)
	return ItemID(v), err
}

// ParseOrderID validates an order id at a trust boundary.
func ParseOrderID(s string) (OrderID, error) {
	v, err := parseSegment("order id", s)
	return OrderID(v), err
}

// parseSegment rejects values that would escape or split a store path.
func parseSegment(kind, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, kind+" is required")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeValidation, kind+" is too long")
	}
	if s == "." || s == ".." {
		return "", dErrors.New(dErrors.CodeValidation, kind+" is invalid")
	}
	for _, r := range s {
		if r == '/' || r == '*' || r == '?' || r == '[' || r == ']' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeValidation, kind+" contains invalid characters")
		}
	}
	return s, nil
}
