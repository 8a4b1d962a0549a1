// Package app wires the renderer, watcher, broker and servers into a running
// live-sync engine, and provides the one-shot static render.
package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"livedoc/internal/broker"
	"livedoc/internal/config"
	lderrors "livedoc/internal/errors"
	"livedoc/internal/logging"
	"livedoc/internal/reconcile"
	"livedoc/internal/render"
	"livedoc/internal/sandbox"
	httptransport "livedoc/internal/transport/http"
	"livedoc/internal/watcher"
)

// Engine is a coordinator between the watched source, the broker and the
// two servers.
type Engine struct {
	cfg    *config.Config
	source string
	output string

	watcher *watcher.Watcher
	broker  *broker.Broker
	static  *httptransport.StaticServer
	push    *httptransport.PushServer

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	log *logrus.Entry
}

// NewEngine prepares an engine for source. Nothing is bound or written
// until Run.
func NewEngine(cfg *config.Config, source string) (*Engine, error) {
	src, err := resolveSource(source)
	if err != nil {
		return nil, err
	}
	output, err := filepath.Abs(cfg.Output)
	if err != nil {
		return nil, lderrors.Wrap(err, lderrors.CodeConfigInvalid, "resolving output path")
	}

	w, err := watcher.New(watcher.Options{
		Debounce: cfg.Watch.Debounce,
		Filters:  []watcher.Filter{watcher.ExtensionFilter(filepath.Ext(src))},
	})
	if err != nil {
		return nil, lderrors.Wrap(err, lderrors.CodeSourceNotFound, "creating file watcher")
	}

	b := broker.New(broker.Options{
		SourcePath: src,
		OutputPath: output,
		Renderer:   render.NewRenderer(),
		Reconcile:  reconcile.ToMarkdown,
		Sandbox:    sandbox.New(sandbox.Options{Timeout: cfg.Sandbox.Timeout}),
		Page: render.PageOptions{
			Title:    documentTitle(src),
			Live:     true,
			PushPort: cfg.Server.PushPort(),
		},
		Changes:            w.Events(),
		SuppressSelfWrites: cfg.Sync.SuppressSelfWrites,
		NotifyPeersOnSave:  cfg.Sync.NotifyPeersOnSave,
	})

	return &Engine{
		cfg:     cfg,
		source:  src,
		output:  output,
		watcher: w,
		broker:  b,
		static:  httptransport.NewStaticServer(httptransport.JoinHostPort(cfg.Server.Host, cfg.Server.Port), filepath.Dir(output)),
		push:    httptransport.NewPushServer(httptransport.JoinHostPort(cfg.Server.Host, cfg.Server.PushPort()), b),
		log:     logging.NewLogger("engine"),
	}, nil
}

// URL returns the browser URL of the live page.
func (e *Engine) URL() string {
	return e.static.URL() + filepath.Base(e.output)
}

// Source returns the absolute source path.
func (e *Engine) Source() string {
	return e.source
}

// Run starts the engine and blocks until ctx is cancelled, then shuts it
// down. Startup failures are returned before anything is served.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	e.Stop()
	return nil
}

// Start renders the page, starts watching and serving, and returns once
// both servers are bound. The engine runs until ctx is cancelled or Stop is
// called.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.broker.Regenerate(); err != nil {
		e.watcher.Close()
		return err
	}
	e.log.WithField("path", e.output).Info("generated initial page")

	watchDir := filepath.Dir(e.source)
	if err := e.watcher.AddRecursive(watchDir); err != nil {
		e.watcher.Close()
		return lderrors.Wrap(err, lderrors.CodeSourceNotFound, "watching source directory").WithDetail("dir", watchDir)
	}

	if err := e.static.Start(); err != nil {
		e.watcher.Close()
		return err
	}
	if err := e.push.Start(); err != nil {
		_ = e.static.Stop()
		e.watcher.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		_ = e.watcher.Run(runCtx)
	}()
	go func() {
		defer e.wg.Done()
		_ = e.broker.Run(runCtx)
	}()

	e.log.WithFields(logrus.Fields{
		"url":   e.URL(),
		"watch": watchDir,
		"push":  e.push.Addr(),
	}).Info("live server running")

	if e.cfg.Server.Open {
		openBrowser(e.URL())
	}
	return nil
}

// Stop shuts down the servers and the watcher, closes every viewer session
// and waits for the engine goroutines to exit. It is safe to call more than
// once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.log.Info("shutting down")
		if e.cancel != nil {
			e.cancel()
		}
		if err := e.static.Stop(); err != nil {
			e.log.WithError(err).Warn("stopping http server")
		}
		if err := e.push.Stop(); err != nil {
			e.log.WithError(err).Warn("stopping push server")
		}
		if err := e.watcher.Close(); err != nil {
			e.log.WithError(err).Warn("closing watcher")
		}
		e.wg.Wait()
	})
}

// RenderOnce writes the static page for source to output.
func RenderOnce(source, output string) error {
	src, err := resolveSource(source)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return lderrors.Wrap(err, lderrors.CodeSourceNotFound, "reading source").WithDetail("path", src)
	}

	doc, err := render.NewRenderer().Render(data)
	if err != nil {
		return err
	}
	page := render.Page(doc, render.PageOptions{Title: documentTitle(src)})

	if err := os.WriteFile(output, []byte(page), 0o644); err != nil {
		return lderrors.Wrap(err, lderrors.CodeSaveFailed, "writing page").WithDetail("path", output)
	}
	logging.NewLogger("render").WithField("path", output).Info("wrote page")
	return nil
}

func resolveSource(source string) (string, error) {
	src, err := filepath.Abs(source)
	if err != nil {
		return "", lderrors.Wrap(err, lderrors.CodeSourceNotFound, "resolving source path")
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", lderrors.Wrap(err, lderrors.CodeSourceNotFound, "source file not found").WithDetail("path", src)
	}
	if info.IsDir() {
		return "", lderrors.New(lderrors.CodeSourceNotFound, "source is a directory").WithDetail("path", src)
	}
	return src, nil
}

func documentTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
