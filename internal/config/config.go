// Package config loads livedoc settings through viper. Values come from
// command-line flags, LIVEDOC_* environment variables, an optional
// .livedoc.yml file and finally the defaults registered by SetDefaults.
package config

import (
	"time"

	"github.com/spf13/viper"

	lderrors "livedoc/internal/errors"
)

const (
	DefaultHost     = "localhost"
	DefaultPort     = 8000
	DefaultOutput   = "index.html"
	DefaultDebounce = 500 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Output  string        `mapstructure:"output"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Open launches the default browser on the page once serving starts.
	Open bool `mapstructure:"open"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type SandboxConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	// SuppressSelfWrites drops watcher events whose file content matches
	// the last rendered source, so saves from a viewer do not echo back as
	// a reload.
	SuppressSelfWrites bool `mapstructure:"suppress_self_writes"`
	// NotifyPeersOnSave broadcasts reload to every session except the
	// saver after a successful save.
	NotifyPeersOnSave bool `mapstructure:"notify_peers_on_save"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PushPort is the port of the websocket push channel.
func (s ServerConfig) PushPort() int {
	return s.Port + 1
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Output:  DefaultOutput,
		Watch:   WatchConfig{Debounce: DefaultDebounce},
		Sandbox: SandboxConfig{Timeout: DefaultTimeout},
		Sync:    SyncConfig{SuppressSelfWrites: true, NotifyPeersOnSave: true},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("output", d.Output)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("sandbox.timeout", d.Sandbox.Timeout)
	v.SetDefault("sync.suppress_self_writes", d.Sync.SuppressSelfWrites)
	v.SetDefault("sync.notify_peers_on_save", d.Sync.NotifyPeersOnSave)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, lderrors.Wrap(err, lderrors.CodeConfigInvalid, "decoding configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise fail late at bind time.
func (c *Config) Validate() error {
	// The push channel listens on port+1, so the last port is unusable.
	if c.Server.Port < 1 || c.Server.Port > 65534 {
		return lderrors.Newf(lderrors.CodeConfigInvalid, "port %d out of range 1-65534", c.Server.Port)
	}
	if c.Server.Host == "" {
		return lderrors.New(lderrors.CodeConfigInvalid, "host must not be empty")
	}
	if c.Output == "" {
		return lderrors.New(lderrors.CodeConfigInvalid, "output path must not be empty")
	}
	if c.Watch.Debounce <= 0 {
		return lderrors.Newf(lderrors.CodeConfigInvalid, "watch debounce must be positive, got %s", c.Watch.Debounce)
	}
	if c.Sandbox.Timeout <= 0 {
		return lderrors.Newf(lderrors.CodeConfigInvalid, "sandbox timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	return nil
}
