// Package store provides durable key-to-JSON persistence with swappable
// backends. The backend is chosen once at composition time; core components
// only ever see the Store interface.
package store

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Store persists JSON-serializable values under string keys.
type Store interface {
	// Save marshals v to JSON and stores it under key, overwriting any
	// previous value.
	Save(key string, v any) error
	// Load unmarshals the value stored under key into out. It returns
	// false with a nil error when the key is absent.
	Load(key string, out any) (bool, error)
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(key string) error
	// Exists reports whether the key is present.
	Exists(key string) (bool, error)
	// Clear removes every key in the namespace.
	Clear() error
	// Close releases backend resources.
	Close() error
}

// FileSettings configures the file backend.
type FileSettings struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// SQLiteSettings configures the sqlite backend.
type SQLiteSettings struct {
	Path string `mapstructure:"path" validate:"required"`
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return err
	}
	return validator.New().Struct(out)
}

// New creates a store backend by name from its settings map.
func New(backend string, settings map[string]any) (Store, error) {
	switch backend {
	case "file":
		var s FileSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid file store settings")
		}
		return NewFileStore(s.Dir)

	case "sqlite":
		var s SQLiteSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid sqlite store settings")
		}
		return NewSQLiteStore(s.Path)

	default:
		return nil, errors.Newf("unsupported store backend: %s", backend)
	}
}
