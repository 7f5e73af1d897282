// Package wrapper edits the native process wrapper's configuration file
// (wrapper.conf). The original text is never rewritten: overrides are
// appended below a header comment, and a previous override section is
// dropped on load so repeated runs do not stack.
package wrapper

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
)

const (
	// JavaAdditional is the indexed key holding extra JVM arguments.
	JavaAdditional = "wrapper.java.additional"

	// MonitorPortProperty carries the command monitor port in the legacy dialect.
	MonitorPortProperty = "jsw.monitor.port"
	// KeepAlivePortProperty carries the keep-alive port in the legacy dialect.
	KeepAlivePortProperty = "jsw.keepAlive.port"
)

// Config is a loaded wrapper configuration file with pending overrides.
type Config struct {
	path     string
	header   string
	original []byte
	existing *properties.Properties
	override *properties.Properties
}

// Load reads the wrapper configuration at path. header is written as a
// comment above the appended overrides.
func Load(path, header string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wrapper config: %w", err)
	}

	original := stripOverrides(data, header)
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	existing, err := loader.LoadBytes(original)
	if err != nil {
		return nil, fmt.Errorf("parse wrapper config %s: %w", path, err)
	}

	override := properties.NewProperties()
	override.DisableExpansion = true

	return &Config{
		path:     path,
		header:   header,
		original: original,
		existing: existing,
		override: override,
	}, nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Get returns the effective value of key, preferring overrides.
func (c *Config) Get(key string) (string, bool) {
	if v, ok := c.override.Get(key); ok {
		return v, true
	}
	return c.existing.Get(key)
}

// Set overrides key with value.
func (c *Config) Set(key, value string) {
	// Expansion is disabled, so Set cannot fail on circular references.
	_, _, _ = c.override.Set(key, value)
}

// AddIndexed appends value under the next free index of key, e.g.
// wrapper.java.additional.7.
func (c *Config) AddIndexed(key, value string) {
	next := max(maxIndex(c.existing, key), maxIndex(c.override, key)) + 1
	c.Set(key+"."+strconv.Itoa(next), value)
}

// Indexed returns the effective values of key.1, key.2, ... in index order,
// stopping at the first gap.
func (c *Config) Indexed(key string) []string {
	var values []string
	for i := 1; ; i++ {
		v, ok := c.Get(key + "." + strconv.Itoa(i))
		if !ok {
			return values
		}
		values = append(values, v)
	}
}

// ConfigureMonitor passes the command monitor port to the wrapped JVM.
func (c *Config) ConfigureMonitor(port int) {
	c.AddIndexed(JavaAdditional, fmt.Sprintf("-D%s=%d", MonitorPortProperty, port))
}

// ConfigureKeepAlive passes the keep-alive port to the wrapped JVM.
func (c *Config) ConfigureKeepAlive(port int) {
	c.AddIndexed(JavaAdditional, fmt.Sprintf("-D%s=%d", KeepAlivePortProperty, port))
}

// Save writes the original text followed by the override section back to the
// file the configuration was loaded from.
func (c *Config) Save() error {
	var buf bytes.Buffer
	buf.Write(c.original)
	if c.override.Len() > 0 {
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.WriteString(headerLine(c.header))
		buf.WriteByte('\n')
		if _, err := c.override.Write(&buf, properties.UTF8); err != nil {
			return fmt.Errorf("encode wrapper overrides: %w", err)
		}
	}

	info, err := os.Stat(c.path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(c.path, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("write wrapper config: %w", err)
	}
	return nil
}

func headerLine(header string) string {
	return "# " + header
}

// stripOverrides cuts data at a previously written header line.
func stripOverrides(data []byte, header string) []byte {
	if header == "" {
		return data
	}
	marker := []byte(headerLine(header))
	offset := 0
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if bytes.Equal(bytes.TrimRight(line, "\r\n"), marker) {
			return data[:offset]
		}
		offset += len(line)
	}
	return data
}

func maxIndex(p *properties.Properties, key string) int {
	prefix := key + "."
	highest := 0
	for _, k := range p.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}
