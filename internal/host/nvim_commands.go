// Package host exposes the live-sync engine to Neovim as remote-plugin
// commands.
package host

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"livedoc/internal/app"
	"livedoc/internal/config"
	lderrors "livedoc/internal/errors"
	"livedoc/internal/logging"
)

// Commands is a state container for Neovim command handlers. At most one
// engine runs at a time, serving the buffer it was started from.
type Commands struct {
	mu     sync.Mutex
	engine *app.Engine
	cancel context.CancelFunc

	loadConfig func() (*config.Config, error)
	log        *logrus.Entry
}

func NewCommands() *Commands {
	return &Commands{
		loadConfig: loadConfig,
		log:        logging.NewLogger("nvim"),
	}
}

// Register registers Neovim command handlers.
func Register(p *plugin.Plugin) error {
	commands := NewCommands()

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{Name: "LiveDocStart"}, commands.LiveDocStart)
	p.HandleCommand(&plugin.CommandOptions{Name: "LiveDocStop"}, commands.LiveDocStop)
	p.HandleCommand(&plugin.CommandOptions{Name: "LiveDocRender"}, commands.LiveDocRender)
	return nil
}

// LiveDocStart serves the current buffer's file, replacing any running
// engine.
func (c *Commands) LiveDocStart(v *nvim.Nvim) error {
	path, err := currentPath(v)
	if err != nil {
		return err
	}
	url, err := c.Start(path)
	if err != nil {
		return err
	}
	return echo(v, "live page: "+url)
}

// LiveDocStop stops the running engine, if any.
func (c *Commands) LiveDocStop(v *nvim.Nvim) error {
	if !c.Stop() {
		return echo(v, "not running")
	}
	return echo(v, "stopped")
}

// LiveDocRender writes a static page next to the current buffer's file.
func (c *Commands) LiveDocRender(v *nvim.Nvim) error {
	path, err := currentPath(v)
	if err != nil {
		return err
	}
	out, err := c.Render(path)
	if err != nil {
		return err
	}
	return echo(v, "wrote "+out)
}

// Start serves path. The output page is written next to path unless the
// configured output is absolute.
func (c *Commands) Start(path string) (string, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(cfg.Output) {
		cfg.Output = filepath.Join(filepath.Dir(path), cfg.Output)
	}

	c.Stop()

	engine, err := app.NewEngine(cfg, path)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := engine.Start(ctx); err != nil {
		cancel()
		return "", err
	}

	c.mu.Lock()
	c.engine = engine
	c.cancel = cancel
	c.mu.Unlock()

	c.log.WithField("path", path).Info("started")
	return engine.URL(), nil
}

// Stop stops the running engine and reports whether one was running.
func (c *Commands) Stop() bool {
	c.mu.Lock()
	engine, cancel := c.engine, c.cancel
	c.engine, c.cancel = nil, nil
	c.mu.Unlock()

	if engine == nil {
		return false
	}
	cancel()
	engine.Stop()
	return true
}

// Render writes <name>.html next to path and returns its location.
func (c *Commands) Render(path string) (string, error) {
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".html"
	if err := app.RenderOnce(path, out); err != nil {
		return "", err
	}
	return out, nil
}

func loadConfig() (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIVEDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return config.Load(v)
}

func currentPath(v *nvim.Nvim) (string, error) {
	name, err := v.BufferName(0)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", lderrors.New(lderrors.CodeSourceNotFound, "buffer has no file")
	}
	return filepath.Abs(name)
}

func echo(v *nvim.Nvim, msg string) error {
	return v.Command(fmt.Sprintf(`echom "[livedoc] %s"`, strings.ReplaceAll(msg, `"`, `\"`)))
}
