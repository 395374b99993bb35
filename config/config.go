// Package config loads the server's TOML configuration file.
package config

import (
	"fmt"
	"net"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Config holds the whole application configuration, per spec.md §6.
type Config struct {
	Listen  ListenConfig  `toml:"listen"`
	Static  StaticConfig  `toml:"static"`
	FastCGI FastCGIConfig `toml:"fastcgi"`
}

// ListenConfig describes the socket the HTTP server accepts on.
type ListenConfig struct {
	Port uint16 `toml:"port"`
}

// StaticConfig describes the static-file responder.
type StaticConfig struct {
	Webroot      string `toml:"webroot"`
	PublicPrefix string `toml:"public_prefix"`
}

// FastCGIConfig describes the upstream application server.
type FastCGIConfig struct {
	Host string `toml:"host"`
	Port uint16 `toml:"port"`
}

// Default returns the configuration spec.md §6 specifies in the absence of
// a config file or of any given key.
func Default() Config {
	return Config{
		Listen: ListenConfig{Port: 8000},
		Static: StaticConfig{
			Webroot:      "/etc/http-server/site",
			PublicPrefix: "/html",
		},
		FastCGI: FastCGIConfig{
			Host: "localhost",
			Port: 9000,
		},
	}
}

// Load reads and validates a TOML configuration file, filling in spec.md's
// defaults for anything the file omits.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: reading %s", path)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Listen.Port == 0 {
		return errors.New("config: listen.port must be nonzero")
	}

	if cfg.Static.Webroot == "" {
		return errors.New("config: static.webroot must not be empty")
	}

	if cfg.FastCGI.Port == 0 {
		return errors.New("config: fastcgi.port must be nonzero")
	}

	return nil
}

// FastCGIAddress returns the "host:port" address to dial for the upstream
// application server.
func (c Config) FastCGIAddress() string {
	return net.JoinHostPort(c.FastCGI.Host, fmt.Sprintf("%d", c.FastCGI.Port))
}

// DumpJSON renders cfg as indented JSON, for the --dump-config flag.
func DumpJSON(cfg Config) (string, error) {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "config: marshaling")
	}

	return string(b), nil
}
