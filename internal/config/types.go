package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Size is a byte count that unmarshals from a number or a human-readable
// string such as "25KiB" or "64m". Units are binary.
type Size int64

// ParseSize parses a byte count like "32k", "25KiB" or "1048576".
func ParseSize(s string) (Size, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	return Size(n), nil
}

func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// Int returns s as an int.
func (s Size) Int() int { return int(s) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}
	if n, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*s = Size(n)
		return nil
	}
	n, err := ParseSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = n
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Duration is a time.Duration that unmarshals from a Go duration string.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if value.Value == "0" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
