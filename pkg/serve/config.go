// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package serve holds the receiver: configuration, the repository-side
// operations and the per-push session state.
package serve

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Keep-alive on idle protocol connections, by convention.
const DefaultIdleTimeout = 75 * time.Second

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// ServerConfig is the receiver's TOML configuration. Unknown keys are
// rejected.
type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	RepoPath string `toml:"repo-path"`
	// Secret signs bearer tokens; Tokens are accepted verbatim.
	Secret       string   `toml:"secret,omitempty"`
	Tokens       []string `toml:"tokens,omitempty"`
	ReadTimeout  Duration `toml:"read-timeout,omitempty"`
	WriteTimeout Duration `toml:"write-timeout,omitempty"`
	IdleTimeout  Duration `toml:"idle-timeout,omitempty"`
}

// Listen renders the host:port pair the server binds.
func (c *ServerConfig) Listen() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DefaultServerConfig returns the documented defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:        "127.0.0.1",
		Port:        8080,
		RepoPath:    "repo",
		IdleTimeout: Duration{Duration: DefaultIdleTimeout},
	}
}

// NewServerConfig loads file over the defaults. ${ENV} references are
// expanded before decoding when expandEnv is set.
func NewServerConfig(file string, expandEnv bool) (*ServerConfig, error) {
	r, err := newExpandReader(file, expandEnv)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	sc := DefaultServerConfig()
	md, err := toml.NewDecoder(r).Decode(sc)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", file, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", file, strings.Join(keys, ", "))
	}
	return sc, nil
}

func newExpandReader(file string, expandEnv bool) (io.ReadCloser, error) {
	fd, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	if !expandEnv {
		return fd, nil
	}
	defer fd.Close()
	buf, err := io.ReadAll(fd)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(os.ExpandEnv(string(buf)))), nil
}
