package chunkcache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a destroyed Cache.
	ErrClosed = errors.New("chunkcache: cache destroyed")

	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("chunkcache: invalid config")

	// ErrCorruptChunk is matched by every *CorruptChunkError.
	ErrCorruptChunk = errors.New("chunkcache: corrupt chunk")
)

// ConfigError reports an invalid Config field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("chunkcache: invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// CorruptChunkError indicates a chunk that failed to parse, authenticate or
// decompress.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type CorruptChunkError struct {
	Name  string
	cause error
}

func (e *CorruptChunkError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("chunkcache: corrupt chunk %s: %v", e.Name, e.cause)
	}
	return fmt.Sprintf("chunkcache: corrupt chunk %s", e.Name)
}

func (e *CorruptChunkError) Unwrap() error { return e.cause }

// Is matches ErrCorruptChunk.
func (e *CorruptChunkError) Is(target error) bool { return target == ErrCorruptChunk }

func corrupt(name string, cause error) error {
	return &CorruptChunkError{Name: name, cause: cause}
}
