package peer

import "time"

// Config is the downward interface to the node's configuration loader,
// which is explicitly out of scope for this package (SPEC_FULL §6): it is
// asked for named properties, not owned here.
type Config interface {
	// Bool returns a named boolean property, e.g. nxt.enablePeerServerGZIPFilter.
	Bool(name string) bool
	// Duration returns a named millisecond-valued property as a
	// time.Duration, e.g. Peers.connectTimeout, Peers.readTimeout,
	// Peers.webSocketIdleTimeout.
	Duration(name string) time.Duration
}

// staticConfig is a Config backed by an in-memory map, used by
// DefaultConfig and by tests that want to override one or two properties
// without standing up the real configuration loader.
type staticConfig struct {
	bools     map[string]bool
	durations map[string]time.Duration
}

func (c *staticConfig) Bool(name string) bool             { return c.bools[name] }
func (c *staticConfig) Duration(name string) time.Duration { return c.durations[name] }

// ConfigOption mutates a staticConfig; used only by NewStaticConfig, the
// teacher's functional-option shape applied to the handful of properties
// this package actually reads.
type ConfigOption func(*staticConfig)

// WithBool overrides a single boolean property.
func WithBool(name string, v bool) ConfigOption {
	return func(c *staticConfig) { c.bools[name] = v }
}

// WithDuration overrides a single duration-valued property.
func WithDuration(name string, v time.Duration) ConfigOption {
	return func(c *staticConfig) { c.durations[name] = v }
}

// NewStaticConfig builds a Config from DefaultConfig's values with the given
// overrides applied, for tests and for standalone binaries that have no
// real configuration loader to delegate to.
func NewStaticConfig(opts ...ConfigOption) Config {
	c := &staticConfig{
		bools: map[string]bool{
			PropGZIPFilter: true,
		},
		durations: map[string]time.Duration{
			PropConnectTimeout:    DefaultConnectTimeout,
			PropReadTimeout:       DefaultReadTimeout,
			PropWebSocketIdleTime: DefaultWebSocketIdleTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultConfig returns the distilled spec's literal defaults.
func DefaultConfig() Config {
	return NewStaticConfig()
}

// Property names the configuration collaborator is asked for, per SPEC_FULL §6.
const (
	PropGZIPFilter        = "nxt.enablePeerServerGZIPFilter"
	PropWebSocketIdleTime = "Peers.webSocketIdleTimeout"
	PropConnectTimeout    = "Peers.connectTimeout"
	PropReadTimeout       = "Peers.readTimeout"
)

// Defaults for the above, used when no Config is supplied.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultReadTimeout          = 30 * time.Second
	DefaultWebSocketIdleTimeout = 5 * time.Minute
)

// reconnectCooldown is a protocol framing constant, not a configured
// property: the distilled spec fixes it at 10s.
const reconnectCooldown = 10 * time.Second
