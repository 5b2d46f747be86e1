package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReadJSON reads and decodes the record at path.
func ReadJSON[T any](ctx context.Context, s Store, path Path) (T, error) {
	var v T
	raw, err := s.Read(ctx, path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

// WriteJSON encodes v and replaces the record at path.
func WriteJSON(ctx context.Context, s Store, path Path, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.Write(ctx, path, raw)
}

// CreateJSON encodes v and writes it only when path is empty.
func CreateJSON(ctx context.Context, s Store, path Path, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.Create(ctx, path, raw)
}

// TransactJSON runs a typed read-modify-write on path. A missing record is
// passed to fn as the zero value with exists=false. When fn returns
// ErrRemove the record is deleted and the zero value is returned.
func TransactJSON[T any](ctx context.Context, s Store, path Path, fn func(current T, exists bool) (T, error)) (T, error) {
	var out T
	raw, err := s.Transact(ctx, path, func(current []byte, exists bool) ([]byte, error) {
		var cur T
		if exists {
			if err := json.Unmarshal(current, &cur); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
		next, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})
	if err != nil {
		return out, err
	}
	if raw == nil {
		// fn returned ErrRemove.
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// ChildrenJSON decodes every direct child of collection. Children that fail
// to decode are reported through skip and left out of the result.
func ChildrenJSON[T any](ctx context.Context, s Store, collection Path, skip func(key string, err error)) (map[string]T, error) {
	raw, err := s.Children(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for key, value := range raw {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			if skip != nil {
				skip(key, err)
			}
			continue
		}
		out[key] = v
	}
	return out, nil
}

// MergeFields applies a one-level merge of fields onto a JSON object. A
// missing or null current value starts from an empty object.
func MergeFields(current []byte, fields map[string]any) ([]byte, error) {
	obj := map[string]json.RawMessage{}
	if len(current) > 0 && string(current) != "null" {
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil, fmt.Errorf("merge into non-object: %w", err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}
