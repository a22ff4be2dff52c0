package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mevdschee/fcgiproto/pkg/fastcgi"
)

// Config represents the fcgiproto-gateway's configuration: which roles the
// demo server accepts, where it listens, its timeouts, and the static
// FCGI_GET_VALUES entries it answers management queries with.
type Config struct {
	Server struct {
		Addr                string   `yaml:"addr"`
		Roles               []string `yaml:"roles"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	FCGIValues map[string]string `yaml:"fcgi_values"`
}

func setDefaults(c *Config) {
	c.Server.Addr = ":9000"
	c.Server.Roles = []string{"responder"}
	c.Server.ReadTimeoutSeconds = 60
	c.Server.WriteTimeoutSeconds = 60
	c.Metrics.Addr = ":9100"
	c.FCGIValues = map[string]string{
		"FCGI_MAX_CONNS":  "1",
		"FCGI_MAX_REQS":   "1",
		"FCGI_MPXS_CONNS": "0",
	}
}

// Load loads configuration from a YAML file, falling back to defaults for
// any field the file omits, and to pure defaults if the file is absent.
func Load(path string) (*Config, error) {
	c := &Config{}
	setDefaults(c)

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return c, nil
}

// ReadTimeout returns the configured read timeout as a time.Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a time.Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

// Roles translates the configured role names into fastcgi.Role values
// accepted by fastcgi.NewConnection. Unknown role names are rejected rather
// than silently ignored, since a typo here would otherwise surface much
// later as a confusing UNKNOWN_ROLE rejection of every connection.
func (c *Config) Roles() ([]fastcgi.Role, error) {
	roles := make([]fastcgi.Role, 0, len(c.Server.Roles))
	for _, name := range c.Server.Roles {
		switch name {
		case "responder":
			roles = append(roles, fastcgi.RoleResponder)
		case "authorizer":
			roles = append(roles, fastcgi.RoleAuthorizer)
		case "filter":
			roles = append(roles, fastcgi.RoleFilter)
		default:
			return nil, fmt.Errorf("config: unknown role %q", name)
		}
	}
	return roles, nil
}
