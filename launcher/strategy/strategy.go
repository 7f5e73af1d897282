// Package strategy decides how ports and JVM flags are wired into an unpacked
// bundle. Bundles up to 2.1 read their monitor ports from the process wrapper;
// later bundles read them from a test properties file.
package strategy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/tomyedwab/bundlelauncher/launcher/wrapper"
)

const (
	// LegacyMarker is the only bootstrap library shipped by 2.1 bundles.
	LegacyMarker = "nexus-bootstrap-2.1.jar"

	// ApplicationPortKey is the server's HTTP port property.
	ApplicationPortKey = "application-port"
	// CommandMonitorPortKey is read by modern bundles to bind their command monitor.
	CommandMonitorPortKey = "org.sonatype.nexus.bootstrap.Launcher.monitor.port"
	// KeepAlivePortKey is read by modern bundles to find the harness keep-alive.
	KeepAlivePortKey = "org.sonatype.nexus.bootstrap.Launcher.keepAlive.port"

	// LegacyPropertiesFile is relative to the bundle target directory.
	LegacyPropertiesFile = "nexus/conf/nexus.properties"
	// ModernPropertiesFile is relative to the bundle target directory.
	ModernPropertiesFile = "nexus/conf/nexus-test.properties"
)

// Kind identifies a configuration dialect.
type Kind int

const (
	Legacy Kind = iota
	Modern
)

// String returns a string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case Legacy:
		return "Legacy"
	case Modern:
		return "Modern"
	default:
		return "InvalidKind"
	}
}

// Property is an extra system property. A nil Value marks a boolean flag and
// is materialized as "true".
type Property struct {
	Key   string
	Value *string
}

// StringValue returns the materialized value of the property.
func (p Property) StringValue() string {
	if p.Value == nil {
		return "true"
	}
	return *p.Value
}

// Settings carries everything a strategy writes.
type Settings struct {
	DebugPort          int
	SuspendOnStart     bool
	SystemProperties   []Property
	CommandMonitorPort int
	KeepAlivePort      int
}

// Strategy wires ports and flags into a bundle.
type Strategy interface {
	Kind() Kind
	// ConfigureWrapper adds overrides to the process wrapper configuration.
	// The caller loads and saves the file.
	ConfigureWrapper(cfg *wrapper.Config)
	// ConfigureServer writes the server properties file under targetDir.
	ConfigureServer(targetDir string, mainPort int) error
}

// Select picks the dialect from the file names in the bundle's library
// directory. Any nexus-*.jar other than the 2.1 bootstrap selects Modern.
func Select(names []string) Kind {
	for _, name := range names {
		if strings.HasPrefix(name, "nexus-") && strings.HasSuffix(name, ".jar") && name != LegacyMarker {
			return Modern
		}
	}
	return Legacy
}

// Determine lists libDir and selects the dialect. A missing directory selects
// Legacy.
func Determine(libDir string) (Kind, error) {
	entries, err := os.ReadDir(libDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Legacy, nil
		}
		return Legacy, fmt.Errorf("list library directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return Select(names), nil
}

// New returns the strategy for kind.
func New(kind Kind, settings Settings) Strategy {
	if kind == Modern {
		return &modernStrategy{settings: settings}
	}
	return &legacyStrategy{settings: settings}
}

// debugFlags returns the JVM remote debugging flags, or nil when debugging
// was not requested.
func debugFlags(s Settings) []string {
	if s.DebugPort <= 0 {
		return nil
	}
	suspend := "n"
	if s.SuspendOnStart {
		suspend = "y"
	}
	return []string{
		"-Xdebug",
		"-Xnoagent",
		"-Djava.compiler=NONE",
		fmt.Sprintf("-Xrunjdwp:transport=dt_socket,server=y,suspend=%s,address=%d", suspend, s.DebugPort),
	}
}

type legacyStrategy struct {
	settings Settings
}

func (s *legacyStrategy) Kind() Kind { return Legacy }

func (s *legacyStrategy) ConfigureWrapper(cfg *wrapper.Config) {
	cfg.ConfigureMonitor(s.settings.CommandMonitorPort)
	cfg.ConfigureKeepAlive(s.settings.KeepAlivePort)

	for _, p := range s.settings.SystemProperties {
		cfg.AddIndexed(wrapper.JavaAdditional, fmt.Sprintf("-D%s=%s", p.Key, p.StringValue()))
	}
	for _, flag := range debugFlags(s.settings) {
		cfg.AddIndexed(wrapper.JavaAdditional, flag)
	}
}

func (s *legacyStrategy) ConfigureServer(targetDir string, mainPort int) error {
	return writeProperties(targetDir, LegacyPropertiesFile, []Property{
		{Key: ApplicationPortKey, Value: ptr(fmt.Sprint(mainPort))},
	})
}

type modernStrategy struct {
	settings Settings
}

func (s *modernStrategy) Kind() Kind { return Modern }

func (s *modernStrategy) ConfigureWrapper(cfg *wrapper.Config) {
	for _, flag := range debugFlags(s.settings) {
		cfg.AddIndexed(wrapper.JavaAdditional, flag)
	}
}

func (s *modernStrategy) ConfigureServer(targetDir string, mainPort int) error {
	props := []Property{
		{Key: ApplicationPortKey, Value: ptr(fmt.Sprint(mainPort))},
		{Key: CommandMonitorPortKey, Value: ptr(fmt.Sprint(s.settings.CommandMonitorPort))},
		{Key: KeepAlivePortKey, Value: ptr(fmt.Sprint(s.settings.KeepAlivePort))},
	}
	props = append(props, s.settings.SystemProperties...)
	return writeProperties(targetDir, ModernPropertiesFile, props)
}

func ptr(s string) *string { return &s }
