package strategy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magiconair/properties"
)

// writeProperties merges props into the properties file at targetDir/rel,
// creating it when missing. Existing keys keep their position and comments.
func writeProperties(targetDir, rel string, props []Property) error {
	path := filepath.Join(targetDir, filepath.FromSlash(rel))

	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true, IgnoreMissing: true}
	p, err := loader.LoadFile(path)
	if err != nil {
		return fmt.Errorf("read properties %s: %w", path, err)
	}
	p.DisableExpansion = true

	for _, prop := range props {
		if _, _, err := p.Set(prop.Key, prop.StringValue()); err != nil {
			return fmt.Errorf("set property %s: %w", prop.Key, err)
		}
	}

	var buf bytes.Buffer
	if _, err := p.WriteComment(&buf, "# ", properties.UTF8); err != nil {
		return fmt.Errorf("encode properties %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create properties directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write properties %s: %w", path, err)
	}
	return nil
}

// ReadProperties loads the properties file at path without expanding
// ${...} references.
func ReadProperties(path string) (*properties.Properties, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties %s: %w", path, err)
	}
	return p, nil
}
