// Package config loads the TOML configuration of the ticket services and
// builds the engine, registry and server keys from it.
package config

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kardianos/ticketauth/authlog"
	"github.com/kardianos/ticketauth/kerb"
)

// Duration is a time.Duration written as a string such as "15m".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Hash kinds.
const (
	HashSHA256 = "sha256"
	HashPBKDF2 = "pbkdf2"
	HashArgon2 = "argon2"
)

// HashConfig selects the password hasher.
type HashConfig struct {
	Kind       string `toml:"kind"`
	Iterations int    `toml:"iterations,omitempty"` // pbkdf2
	Time       uint32 `toml:"time,omitempty"`       // argon2
	Memory     uint32 `toml:"memory,omitempty"`     // argon2, KiB
	Threads    uint8  `toml:"threads,omitempty"`    // argon2
}

// User is a registered client. Either Password or Digest (hex) is set.
type User struct {
	ID       string `toml:"id"`
	Password string `toml:"password,omitempty"`
	Digest   string `toml:"digest,omitempty"`
}

// Config is the configuration file.
type Config struct {
	// Path is the file the configuration was loaded from. Relative paths
	// inside the file resolve against its directory.
	Path string `toml:"-"`

	Realm              string         `toml:"realm"`
	TicketLifetime     Duration       `toml:"ticket_lifetime"`
	ClockSkew          Duration       `toml:"clock_skew"`
	HideUnknownClients bool           `toml:"hide_unknown_clients"`
	Keytab             string         `toml:"keytab,omitempty"`
	Hash               HashConfig     `toml:"hash"`
	Logger             authlog.Config `toml:"logger"`
	Users              []User         `toml:"users"`
}

// Default returns the configuration written by "init".
func Default(path string) *Config {
	return &Config{
		Path:           path,
		Realm:          "EXAMPLE.COM",
		TicketLifetime: Duration{kerb.DefaultTicketLifetime},
		Hash:           HashConfig{Kind: HashPBKDF2, Iterations: kerb.DefaultIterations},
		Logger:         authlog.Config{Environment: "production", Verbosity: 1},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	// Keys missing from the file keep their defaults.
	conf := Default(path)
	md, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}
	conf.Path = path
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Save writes the configuration to Path.
func (c *Config) Save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(c.Path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Realm == "" {
		return fmt.Errorf("config: realm is required")
	}
	if c.TicketLifetime.Duration < 0 || c.ClockSkew.Duration < 0 {
		return fmt.Errorf("config: ticket_lifetime and clock_skew must not be negative")
	}
	if _, err := c.Hasher(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		switch {
		case u.ID == "":
			return fmt.Errorf("config: user %d has no id", i)
		case seen[u.ID]:
			return fmt.Errorf("config: duplicate user %q", u.ID)
		case (u.Password == "") == (u.Digest == ""):
			return fmt.Errorf("config: user %q needs exactly one of password or digest", u.ID)
		}
		if u.Digest != "" {
			d, err := hex.DecodeString(u.Digest)
			if err != nil || len(d) != kerb.KeySize {
				return fmt.Errorf("config: user %q: digest must be %d hex encoded bytes", u.ID, kerb.KeySize)
			}
		}
		seen[u.ID] = true
	}
	return nil
}

// ResolvePath resolves file against the directory of the configuration.
func (c *Config) ResolvePath(file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(filepath.Dir(c.Path), file)
}

// Hasher returns the configured password hasher.
func (c *Config) Hasher() (kerb.PasswordHasher, error) {
	switch strings.ToLower(c.Hash.Kind) {
	case HashSHA256:
		return kerb.SHA256Hasher{}, nil
	case "", HashPBKDF2:
		if c.Hash.Iterations < 0 {
			return nil, fmt.Errorf("config: hash iterations must not be negative")
		}
		return kerb.StringToKeyHasher{Realm: c.Realm, Iterations: c.Hash.Iterations}, nil
	case HashArgon2:
		return kerb.Argon2Hasher{Realm: c.Realm, Time: c.Hash.Time, Memory: c.Hash.Memory, Threads: c.Hash.Threads}, nil
	}
	return nil, fmt.Errorf("config: unknown hash kind %q", c.Hash.Kind)
}

// NewRegistry returns an in-memory registry seeded with the configured
// users.
func (c *Config) NewRegistry(h kerb.PasswordHasher) (*kerb.MemRegistry, error) {
	reg := kerb.NewMemRegistry()
	for _, u := range c.Users {
		var d []byte
		var err error
		if u.Digest != "" {
			d, err = hex.DecodeString(u.Digest)
		} else {
			d, err = h.HashPassword(u.ID, u.Password)
		}
		if err != nil {
			return nil, fmt.Errorf("config: user %q: %w", u.ID, err)
		}
		reg.SetPasswordDigest(u.ID, d)
		kerb.Wipe(d)
	}
	return reg, nil
}

// ServerKeys loads the keytab or, if none is configured, generates random
// keys.
func (c *Config) ServerKeys() (*kerb.ServerKeys, error) {
	if c.Keytab == "" {
		return kerb.GenerateServerKeys()
	}
	return kerb.LoadServerKeys(c.ResolvePath(c.Keytab), c.Realm)
}

// NewLogger builds the configured logger.
func (c *Config) NewLogger() (*authlog.Logger, error) {
	conf := c.Logger
	conf.Path = c.ResolvePath(conf.Path)
	return authlog.New(conf)
}

// NewAuthServer wires an engine, registry and server keys from the
// configuration.
func (c *Config) NewAuthServer(ctx context.Context, log *authlog.Logger) (*kerb.AuthServer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := c.Hasher()
	if err != nil {
		return nil, err
	}
	reg, err := c.NewRegistry(h)
	if err != nil {
		return nil, err
	}
	eng, err := kerb.New(kerb.Config{
		Realm:          c.Realm,
		Registry:       reg,
		Hasher:         h,
		TicketLifetime: c.TicketLifetime.Duration,
		ClockSkew:      c.ClockSkew.Duration,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	keys, err := c.ServerKeys()
	if err != nil {
		return nil, err
	}
	log.Info(authlog.AreaGeneral, "auth server ready", "realm", c.Realm, "users", reg.Len(), "keytab", c.Keytab != "")
	return kerb.NewAuthServer(kerb.AuthServerConfig{
		Engine:             eng,
		Keys:               keys,
		HideUnknownClients: c.HideUnknownClients,
	})
}

// NewClientEngine returns an engine for the client side. It shares the
// realm, hasher and timing settings with the server but holds no registry.
func (c *Config) NewClientEngine(log *authlog.Logger) (*kerb.Engine, error) {
	h, err := c.Hasher()
	if err != nil {
		return nil, err
	}
	return kerb.New(kerb.Config{
		Realm:          c.Realm,
		Hasher:         h,
		TicketLifetime: c.TicketLifetime.Duration,
		ClockSkew:      c.ClockSkew.Duration,
		Logger:         log,
	})
}

// SetUserDigest records a digest for id, replacing any password.
func (c *Config) SetUserDigest(id string, digest []byte) {
	for i := range c.Users {
		if c.Users[i].ID == id {
			c.Users[i] = User{ID: id, Digest: hex.EncodeToString(digest)}
			return
		}
	}
	c.Users = append(c.Users, User{ID: id, Digest: hex.EncodeToString(digest)})
}
