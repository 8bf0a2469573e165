package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ParseError wraps a TOML decode failure with the file path that
// produced it.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads a Document from path. A missing file is not an error: it
// returns Default(), treating an absent config as safe defaults.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return decodeConfig(path, data)
}

func decodeConfig(path string, data []byte) (*Document, error) {
	doc := Default()
	if err := toml.Unmarshal(data, doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return doc, nil
}

// Save writes doc to path as TOML, creating or truncating the file.
func Save(path string, doc *Document) error {
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
