// Package config loads the launcher's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomyedwab/bundlelauncher/launcher/bundle"
	"github.com/tomyedwab/bundlelauncher/launcher/health"
	"github.com/tomyedwab/bundlelauncher/launcher/ports"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "bundlelauncher.yaml"

type Config struct {
	TargetDirectory  string           `yaml:"targetDirectory"`
	Port             int              `yaml:"port"`
	DebugPort        int              `yaml:"debugPort"`
	SuspendOnStart   bool             `yaml:"suspendOnStart"`
	SystemProperties SystemProperties `yaml:"systemProperties"`
	Plugins          []string         `yaml:"plugins"`

	StartTimeout      time.Duration `yaml:"startTimeout"`
	StartPollInterval time.Duration `yaml:"startPollInterval"`
	StopGracePeriod   time.Duration `yaml:"stopGracePeriod"`
	CommandTimeout    time.Duration `yaml:"commandTimeout"`

	ContextPath string    `yaml:"contextPath"`
	StatusPath  string    `yaml:"statusPath"`
	PortRange   PortRange `yaml:"portRange"`

	RegistryPath string `yaml:"registryPath"`
	MetricsAddr  string `yaml:"metricsAddr"`
}

type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// SystemProperties is an ordered mapping of JVM system properties. A null
// value marks a flag.
type SystemProperties []bundle.SystemProperty

func (sp *SystemProperties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*sp = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: systemProperties must be a mapping", node.Line)
	}

	props := make(SystemProperties, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: system property %q must have a scalar value", value.Line, key.Value)
		}
		prop := bundle.SystemProperty{Key: key.Value}
		if value.Tag != "!!null" {
			v := value.Value
			prop.Value = &v
		}
		props = append(props, prop)
	}
	*sp = props
	return nil
}

func (sp SystemProperties) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range sp {
		value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		if p.Value != nil {
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: *p.Value}
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Key}, value)
	}
	return node, nil
}

func DefaultConfig() *Config {
	return &Config{
		TargetDirectory:   ".",
		StartTimeout:      bundle.DefaultStartTimeout,
		StartPollInterval: bundle.DefaultStartPollInterval,
		StopGracePeriod:   bundle.DefaultStopGracePeriod,
		CommandTimeout:    5 * time.Second,
		ContextPath:       bundle.DefaultContextPath,
		StatusPath:        health.DefaultStatusPath,
	}
}

// LoadConfig reads the file at configPath. A missing file yields the
// defaults. Relative targetDirectory, plugin and registry paths are resolved
// against the file's directory.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	base := filepath.Dir(configPath)
	cfg.TargetDirectory = resolve(base, cfg.TargetDirectory)
	for i, p := range cfg.Plugins {
		cfg.Plugins[i] = resolve(base, p)
	}
	if cfg.RegistryPath != "" {
		cfg.RegistryPath = resolve(base, cfg.RegistryPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate rejects configurations no bundle could run with.
func (c *Config) Validate() error {
	var errs []error
	if c.TargetDirectory == "" {
		errs = append(errs, errors.New("targetDirectory is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DebugPort < 0 || c.DebugPort > 65535 {
		errs = append(errs, fmt.Errorf("debugPort %d out of range", c.DebugPort))
	}
	if c.PortRange.Min < 0 || c.PortRange.Max < 0 {
		errs = append(errs, errors.New("portRange bounds must not be negative"))
	} else if (c.PortRange.Min == 0) != (c.PortRange.Max == 0) {
		errs = append(errs, errors.New("portRange needs both min and max"))
	} else if c.PortRange.Min > c.PortRange.Max {
		errs = append(errs, fmt.Errorf("portRange min %d is above max %d", c.PortRange.Min, c.PortRange.Max))
	}
	for _, p := range c.SystemProperties {
		if p.Key == "" {
			errs = append(errs, errors.New("system property with empty name"))
		}
	}
	return errors.Join(errs...)
}

// BundleConfiguration converts the file into the controller's configuration.
func (c *Config) BundleConfiguration() bundle.Configuration {
	return bundle.Configuration{
		TargetDirectory:   c.TargetDirectory,
		Port:              c.Port,
		DebugPort:         c.DebugPort,
		SuspendOnStart:    c.SuspendOnStart,
		SystemProperties:  append([]bundle.SystemProperty(nil), c.SystemProperties...),
		Plugins:           append([]string(nil), c.Plugins...),
		StartTimeout:      c.StartTimeout,
		StartPollInterval: c.StartPollInterval,
		StopGracePeriod:   c.StopGracePeriod,
		ContextPath:       c.ContextPath,
	}
}

// PortsConfig returns the port reservation settings.
func (c *Config) PortsConfig() ports.Config {
	return ports.Config{MinPort: c.PortRange.Min, MaxPort: c.PortRange.Max}
}
