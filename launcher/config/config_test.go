package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundlelauncher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_NotFound(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 2*time.Minute, cfg.StartTimeout)
	assert.Equal(t, "/nexus", cfg.ContextPath)
	assert.Equal(t, "service/local/status", cfg.StatusPath)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "invalid: yaml: content: ["))
	assert.Error(t, err)
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
targetDirectory: target/bundle
port: 8081
debugPort: 5005
suspendOnStart: true
systemProperties:
  zeta: last
  foo: bar
  flag:
  empty: ""
plugins:
  - plugins/my-plugin
  - /abs/other-plugin.zip
startTimeout: 90s
startPollInterval: 500ms
stopGracePeriod: 1m
commandTimeout: 2s
contextPath: /
portRange:
  min: 40000
  max: 40100
registryPath: runs.db
metricsAddr: ":9102"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	base := filepath.Dir(path)

	assert.Equal(t, filepath.Join(base, "target", "bundle"), cfg.TargetDirectory)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, 5005, cfg.DebugPort)
	assert.True(t, cfg.SuspendOnStart)
	assert.Equal(t, []string{filepath.Join(base, "plugins", "my-plugin"), "/abs/other-plugin.zip"}, cfg.Plugins)
	assert.Equal(t, 90*time.Second, cfg.StartTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.StartPollInterval)
	assert.Equal(t, time.Minute, cfg.StopGracePeriod)
	assert.Equal(t, 2*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "/", cfg.ContextPath)
	assert.Equal(t, "service/local/status", cfg.StatusPath, "unset fields keep defaults")
	assert.Equal(t, PortRange{Min: 40000, Max: 40100}, cfg.PortRange)
	assert.Equal(t, filepath.Join(base, "runs.db"), cfg.RegistryPath)
	assert.Equal(t, ":9102", cfg.MetricsAddr)

	require.Len(t, cfg.SystemProperties, 4)
	keys := []string{}
	for _, p := range cfg.SystemProperties {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"zeta", "foo", "flag", "empty"}, keys, "mapping order is preserved")
	require.NotNil(t, cfg.SystemProperties[1].Value)
	assert.Equal(t, "bar", *cfg.SystemProperties[1].Value)
	assert.Nil(t, cfg.SystemProperties[2].Value, "null value is a flag")
	assert.Equal(t, "true", cfg.SystemProperties[2].StringValue())
	require.NotNil(t, cfg.SystemProperties[3].Value)
	assert.Equal(t, "", *cfg.SystemProperties[3].Value)

	bc := cfg.BundleConfiguration()
	assert.Equal(t, cfg.TargetDirectory, bc.TargetDirectory)
	assert.Equal(t, 5005, bc.DebugPort)
	assert.Equal(t, 90*time.Second, bc.StartTimeout)
	assert.Len(t, bc.SystemProperties, 4)

	pc := cfg.PortsConfig()
	assert.Equal(t, 40000, pc.MinPort)
	assert.Equal(t, 40100, pc.MaxPort)
}

func TestLoadConfig_SystemPropertiesMustBeMapping(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "systemProperties:\n  - foo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"negative port", func(c *Config) { c.Port = -1 }, "port -1 out of range"},
		{"negative debug port", func(c *Config) { c.DebugPort = -5 }, "debugPort -5 out of range"},
		{"inverted range", func(c *Config) { c.PortRange = PortRange{Min: 5000, Max: 4000} }, "is above max"},
		{"half range", func(c *Config) { c.PortRange = PortRange{Min: 5000} }, "needs both"},
		{"negative range", func(c *Config) { c.PortRange = PortRange{Min: -1, Max: 10} }, "must not be negative"},
		{"no target", func(c *Config) { c.TargetDirectory = "" }, "targetDirectory is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSystemProperties_MarshalKeepsOrderAndFlags(t *testing.T) {
	bar := "bar"
	in := struct {
		Props SystemProperties `yaml:"systemProperties"`
	}{Props: SystemProperties{{Key: "foo", Value: &bar}, {Key: "flag"}}}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)

	var out struct {
		Props SystemProperties `yaml:"systemProperties"`
	}
	require.NoError(t, yaml.Unmarshal(data, &out))
	require.Len(t, out.Props, 2)
	assert.Equal(t, "foo", out.Props[0].Key)
	assert.Equal(t, "bar", *out.Props[0].Value)
	assert.Nil(t, out.Props[1].Value)
}
