package web

import (
	"fmt"
	"time"
)

// Config holds the web server settings. Zero fields take the tag defaults
// when the config passes through arbor's validation, so an empty Config is
// a working development setup.
type Config struct {
	// Host is the interface the server binds to.
	Host string `yaml:"host" env:"HOST" default:"0.0.0.0"`

	// Port is the TCP port the server listens on.
	Port int `yaml:"port" env:"PORT" default:"8080"`

	// BasePath prefixes every route, e.g. "/api/v1".
	BasePath string `yaml:"basePath" env:"BASE_PATH"`

	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" env:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestIDHeader is the header carrying the request ID; a missing or
	// empty header gets a generated UUID.
	RequestIDHeader string `yaml:"requestIDHeader" env:"REQUEST_ID_HEADER" default:"X-Request-Id"`

	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig controls the CORS headers the server answers with.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed for cross-origin requests;
	// "*" allows all.
	AllowedOrigins []string `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" default:"*"`

	AllowedMethods []string `yaml:"allowedMethods" env:"ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`

	AllowedHeaders []string `yaml:"allowedHeaders" env:"ALLOWED_HEADERS" default:"Origin,Accept,Content-Type,Authorization"`

	AllowCredentials bool `yaml:"allowCredentials" env:"ALLOW_CREDENTIALS"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `yaml:"maxAge" env:"MAX_AGE" default:"300"`
}

// Validate implements arbor.ConfigValidator.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidPort, c.Port)
	}
	return nil
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
