package ports

import (
	"fmt"
	"net"
	"sort"
	"sync"
)

const defaultMaxAttempts = 100

// ResourceExhaustedError is returned when no free port could be found within
// the configured number of probe attempts.
type ResourceExhaustedError struct {
	Attempts int
	MinPort  int
	MaxPort  int
}

func (e *ResourceExhaustedError) Error() string {
	if e.MinPort > 0 {
		return fmt.Sprintf("no free port in range [%d-%d] after %d attempts", e.MinPort, e.MaxPort, e.Attempts)
	}
	return fmt.Sprintf("no free port found after %d attempts", e.Attempts)
}

// Config holds configuration options for a Service.
type Config struct {
	MinPort     int // Optional, scan [MinPort, MaxPort] instead of asking the OS
	MaxPort     int // Optional, must be set together with MinPort
	MaxAttempts int // Optional, defaults to 100
	Host        string

	// probe checks whether a port can be bound. Tests override it to avoid
	// depending on the host's socket table.
	probe func(host string, port int) (int, bool)
}

// Service hands out TCP ports that are free on the local host and keeps track
// of them until they are canceled. A Service is shared by every bundle in the
// harness process; all bookkeeping happens under mu.
type Service struct {
	mu            sync.Mutex
	minPort       int
	maxPort       int
	maxAttempts   int
	host          string
	reserved      map[int]bool // Tracks reserved ports
	nextCandidate int          // Next port to try when scanning a range
	probe         func(host string, port int) (int, bool)
}

// New creates a port reservation service. With no range configured, ports are
// taken from the OS ephemeral range.
func New(config Config) (*Service, error) {
	if config.MinPort != 0 || config.MaxPort != 0 {
		if config.MinPort <= 0 || config.MaxPort <= 0 || config.MinPort > config.MaxPort || config.MaxPort > 65535 {
			return nil, fmt.Errorf("invalid port range: min %d, max %d", config.MinPort, config.MaxPort)
		}
	}
	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	host := config.Host
	if host == "" {
		host = "127.0.0.1"
	}
	probe := config.probe
	if probe == nil {
		probe = probePort
	}
	return &Service{
		minPort:       config.MinPort,
		maxPort:       config.MaxPort,
		maxAttempts:   attempts,
		host:          host,
		reserved:      make(map[int]bool),
		nextCandidate: config.MinPort,
		probe:         probe,
	}, nil
}

// Reserve finds a free TCP port, marks it reserved and returns it. The port is
// not held open; it is only guaranteed not to be handed out again until
// Cancel is called for it.
func (s *Service) Reserve() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		candidate := 0
		if s.minPort > 0 {
			candidate = s.nextCandidate
			s.nextCandidate++
			if s.nextCandidate > s.maxPort {
				s.nextCandidate = s.minPort
			}
			if s.reserved[candidate] {
				continue
			}
		}

		port, ok := s.probe(s.host, candidate)
		if !ok || port <= 0 || s.reserved[port] {
			continue
		}
		s.reserved[port] = true
		return port, nil
	}

	return 0, &ResourceExhaustedError{Attempts: s.maxAttempts, MinPort: s.minPort, MaxPort: s.maxPort}
}

// Cancel marks a previously reserved port as free again. Canceling a port
// that is not reserved does nothing.
func (s *Service) Cancel(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, port)
}

// IsReserved reports whether port is currently reserved.
func (s *Service) IsReserved(port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved[port]
}

// Reserved returns the currently reserved ports in ascending order.
func (s *Service) Reserved() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ports := make([]int, 0, len(s.reserved))
	for port := range s.reserved {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

// Len returns the number of reserved ports.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reserved)
}

// probePort binds host:port and releases it immediately. A zero port asks the
// OS for an ephemeral one; the bound port is returned either way.
func probePort(host string, port int) (int, bool) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return 0, false
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, true
}
