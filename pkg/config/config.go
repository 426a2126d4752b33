package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/openclinic/fhirsub/pkg/authz"
	"github.com/openclinic/fhirsub/pkg/dispatch"
	"github.com/openclinic/fhirsub/pkg/resource"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "FHIRSUB_CONFIG"

// Config is the server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// WebSocketPath is the path the notification websocket is served on.
	WebSocketPath string `yaml:"websocket_path"`

	// Database is the SQLite file. Empty keeps resources in memory.
	Database string `yaml:"database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ProtocolLog is the CBOR protocol log file. Empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`

	Heartbeat     HeartbeatConfig     `yaml:"heartbeat"`
	Dispatcher    DispatcherConfig    `yaml:"dispatcher"`
	Transport     TransportConfig     `yaml:"transport"`
	Discovery     DiscoveryConfig     `yaml:"discovery"`
	Tokens        []TokenConfig       `yaml:"tokens"`
	Authorization AuthorizationConfig `yaml:"authorization"`
}

// HeartbeatConfig configures connection heartbeats.
type HeartbeatConfig struct {
	// Interval between pings. Default: 28s
	Interval time.Duration `yaml:"interval"`
}

// DispatcherConfig configures the event queue.
type DispatcherConfig struct {
	// QueueSize bounds pending events. Default: 10000
	QueueSize int `yaml:"queue_size"`

	// Overflow is "drop" or "block". Default: drop
	Overflow string `yaml:"overflow"`

	// ShutdownGrace bounds the drain on shutdown. Default: 10s
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// TransportConfig configures the websocket endpoint.
type TransportConfig struct {
	// MaxMessageSize limits inbound frames, e.g. "64KB". Default: 64KB
	MaxMessageSize datasize.ByteSize `yaml:"max_message_size"`

	// WriteTimeout bounds one frame write. Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RequiredCapability must be held by connecting principals.
	// Default: subscription.listen
	RequiredCapability string `yaml:"required_capability"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig enables wss:// when CertFile is set.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ClientCAFile requires client certificates signed by these CAs.
	ClientCAFile string `yaml:"client_ca_file"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Instance is the advertised instance name. Default: the hostname.
	Instance string `yaml:"instance"`

	// Interface restricts advertisement to one network interface.
	Interface string `yaml:"interface"`
}

// TokenConfig maps a static bearer token to a principal. Exactly one of
// Token and TokenHash is set; TokenHash is a bcrypt hash of the token.
type TokenConfig struct {
	Token        string   `yaml:"token"`
	TokenHash    string   `yaml:"token_hash"`
	Subject      string   `yaml:"subject"`
	Capabilities []string `yaml:"capabilities"`
}

// AuthorizationConfig configures per-resource authorization rules.
type AuthorizationConfig struct {
	// DefaultRules installs the scope and compartment rules for every
	// resource type. Default: true
	DefaultRules bool `yaml:"default_rules"`

	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig is one expression rule.
type RuleConfig struct {
	// Resource is a resource type name or "*".
	Resource string `yaml:"resource"`
	Name     string `yaml:"name"`
	Expr     string `yaml:"expr"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:        ":8080",
		WebSocketPath: "/ws",
		LogLevel:      "info",
		Heartbeat: HeartbeatConfig{
			Interval: 28 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			QueueSize:     dispatch.DefaultQueueSize,
			Overflow:      dispatch.OverflowDrop.String(),
			ShutdownGrace: dispatch.DefaultShutdownGrace,
		},
		Transport: TransportConfig{
			MaxMessageSize:     64 * datasize.KB,
			WriteTimeout:       10 * time.Second,
			RequiredCapability: string(authz.CapabilityListen),
		},
		Authorization: AuthorizationConfig{
			DefaultRules: true,
		},
	}
}

// Load loads the file named by FHIRSUB_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and expands variables.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Database = expandVars(c.Database)
	c.ProtocolLog = expandVars(c.ProtocolLog)
	c.Transport.TLS.CertFile = expandVars(c.Transport.TLS.CertFile)
	c.Transport.TLS.KeyFile = expandVars(c.Transport.TLS.KeyFile)
	c.Transport.TLS.ClientCAFile = expandVars(c.Transport.TLS.ClientCAFile)
	for i := range c.Tokens {
		c.Tokens[i].Token = expandVars(c.Tokens[i].Token)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if !strings.HasPrefix(c.WebSocketPath, "/") {
		errs = append(errs, fmt.Errorf("websocket_path must start with /: %q", c.WebSocketPath))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, errors.New("heartbeat.interval must be positive"))
	}
	if c.Dispatcher.QueueSize <= 0 {
		errs = append(errs, errors.New("dispatcher.queue_size must be positive"))
	}
	if _, err := dispatch.ParseOverflowPolicy(c.Dispatcher.Overflow); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher.overflow: %w", err))
	}
	if c.Dispatcher.ShutdownGrace < 0 {
		errs = append(errs, errors.New("dispatcher.shutdown_grace must not be negative"))
	}
	if c.Transport.MaxMessageSize < datasize.B*128 {
		errs = append(errs, fmt.Errorf("transport.max_message_size too small: %s", c.Transport.MaxMessageSize.HR()))
	}
	if c.Transport.WriteTimeout <= 0 {
		errs = append(errs, errors.New("transport.write_timeout must be positive"))
	}
	if c.Transport.RequiredCapability == "" {
		errs = append(errs, errors.New("transport.required_capability is required"))
	}
	if (c.Transport.TLS.CertFile == "") != (c.Transport.TLS.KeyFile == "") {
		errs = append(errs, errors.New("transport.tls needs both cert_file and key_file"))
	}

	seen := make(map[string]bool)
	for i, tok := range c.Tokens {
		switch {
		case tok.Token == "" && tok.TokenHash == "":
			errs = append(errs, fmt.Errorf("tokens[%d].token is empty", i))
		case tok.Token != "" && tok.TokenHash != "":
			errs = append(errs, fmt.Errorf("tokens[%d]: token and token_hash are exclusive", i))
		case tok.Token != "":
			if seen[tok.Token] {
				errs = append(errs, fmt.Errorf("tokens[%d].token is duplicated", i))
			}
			seen[tok.Token] = true
		default:
			if _, err := bcrypt.Cost([]byte(tok.TokenHash)); err != nil {
				errs = append(errs, fmt.Errorf("tokens[%d].token_hash: %w", i, err))
			}
		}
		if tok.Subject == "" {
			errs = append(errs, fmt.Errorf("tokens[%d].subject is required", i))
		}
	}

	for i, rule := range c.Authorization.Rules {
		if rule.Resource != "*" {
			if _, ok := resource.ParseKind(rule.Resource); !ok {
				errs = append(errs, fmt.Errorf("authorization.rules[%d]: unknown resource %q", i, rule.Resource))
			}
		}
		if rule.Expr == "" {
			errs = append(errs, fmt.Errorf("authorization.rules[%d].expr is required", i))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel returns the log level as a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// OverflowPolicy returns the parsed dispatcher overflow policy.
func (c *Config) OverflowPolicy() dispatch.OverflowPolicy {
	p, _ := dispatch.ParseOverflowPolicy(c.Dispatcher.Overflow)
	return p
}

// Principals returns the plain configured tokens as principals.
func (c *Config) Principals() map[string]*authz.Principal {
	out := make(map[string]*authz.Principal, len(c.Tokens))
	for _, tok := range c.Tokens {
		if tok.Token != "" {
			out[tok.Token] = tok.principal()
		}
	}
	return out
}

// HashedPrincipals returns the principals of hashed tokens keyed by hash.
func (c *Config) HashedPrincipals() map[string]*authz.Principal {
	out := make(map[string]*authz.Principal)
	for _, tok := range c.Tokens {
		if tok.Token == "" && tok.TokenHash != "" {
			out[tok.TokenHash] = tok.principal()
		}
	}
	return out
}

func (t TokenConfig) principal() *authz.Principal {
	caps := make([]authz.Capability, len(t.Capabilities))
	for i, s := range t.Capabilities {
		caps[i] = authz.Capability(s)
	}
	return authz.NewPrincipal(t.Subject, caps...)
}

// RuleSpecs returns the configured expression rules.
func (c *Config) RuleSpecs() []authz.RuleSpec {
	specs := make([]authz.RuleSpec, len(c.Authorization.Rules))
	for i, r := range c.Authorization.Rules {
		specs[i] = authz.RuleSpec{Resource: r.Resource, Name: r.Name, Expr: r.Expr}
	}
	return specs
}
