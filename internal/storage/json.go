package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt reports a stored value that could not be decoded.
var ErrCorrupt = errors.New("storage: corrupt value")

// LoadJSON decodes the value at key into dst. A missing key leaves dst
// untouched and returns ErrNotFound; undecodable bytes return ErrCorrupt.
func LoadJSON(ctx context.Context, kv KV, key string, dst any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SaveJSON replaces the whole value at key.
func SaveJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}
