package engine

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Manifest describes a model artifact.
type Manifest struct {
	Name    string  `toml:"name"`
	Backend string  `toml:"backend"`
	Input   Binding `toml:"input"`
	Output  Binding `toml:"output"`

	// Options are passed through to the backend factory untouched.
	Options map[string]any `toml:"options"`

	// Path is the file the manifest was read from.
	Path string `toml:"-"`
}

// Binding is one tensor endpoint of the model.
type Binding struct {
	Name  string `toml:"name"`
	Dims  []int  `toml:"dims"`
	DType string `toml:"dtype"`
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := toml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Validate checks the manifest and both bindings.
func (m Manifest) Validate() error {
	if m.Backend == "" {
		return fmt.Errorf("manifest %q: backend is required", m.Name)
	}
	if _, err := m.Input.Bytes(); err != nil {
		return fmt.Errorf("input binding: %w", err)
	}
	if _, err := m.Output.Bytes(); err != nil {
		return fmt.Errorf("output binding: %w", err)
	}
	return nil
}

// Volume is the element count of the binding.
func (b Binding) Volume() (int, error) {
	if len(b.Dims) == 0 {
		return 0, fmt.Errorf("binding %q has no dims", b.Name)
	}
	v := 1
	for _, d := range b.Dims {
		if d <= 0 {
			return 0, fmt.Errorf("binding %q has dynamic or empty dim %d", b.Name, d)
		}
		v *= d
	}
	return v, nil
}

// Bytes is the frame length of the binding.
func (b Binding) Bytes() (int, error) {
	v, err := b.Volume()
	if err != nil {
		return 0, err
	}
	size, err := ElementSize(b.DType)
	if err != nil {
		return 0, fmt.Errorf("binding %q: %w", b.Name, err)
	}
	return v * size, nil
}

// ElementSize returns the width in bytes of a tensor element type.
func ElementSize(dtype string) (int, error) {
	switch strings.ToLower(dtype) {
	case "float32", "fp32", "float", "int32":
		return 4, nil
	case "float16", "fp16", "half":
		return 2, nil
	case "int8", "uint8", "bool", "fp8":
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}
