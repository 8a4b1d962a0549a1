// Package broker owns the connected viewers and the rendered artifact, and
// dispatches push-channel requests to the renderer, reconciler and sandbox.
//
// Source changes arrive on a channel and are handled on the Run loop.
// Requests from one viewer are handled in order on a worker dedicated to
// that viewer, so a long execution never delays another viewer.
package broker

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"livedoc/internal/contracts"
	lderrors "livedoc/internal/errors"
	"livedoc/internal/logging"
	"livedoc/internal/render"
	"livedoc/internal/sandbox"
	"livedoc/internal/session"
	"livedoc/internal/watcher"
)

const inboxSize = 32

// Renderer turns source markup into a Document.
type Renderer interface {
	Render(source []byte) (render.Document, error)
}

// Executor runs code snippets.
type Executor interface {
	Execute(ctx context.Context, code, languageTag string) sandbox.Result
}

// ReconcileFunc converts an edited content fragment back to source markup.
type ReconcileFunc func(fragment string) (string, error)

// Options configures a Broker.
type Options struct {
	SourcePath string
	OutputPath string

	Renderer  Renderer
	Reconcile ReconcileFunc
	Sandbox   Executor
	Page      render.PageOptions

	// Sessions defaults to a fresh Directory.
	Sessions *session.Directory
	// Changes feeds source modifications into Run. Nil disables watching.
	Changes <-chan watcher.Event

	SuppressSelfWrites bool
	NotifyPeersOnSave  bool
}

type worker struct {
	inbox chan []byte
	done  chan struct{}
}

// Broker is safe for concurrent use.
type Broker struct {
	source    string
	output    string
	renderer  Renderer
	reconcile ReconcileFunc
	sandbox   Executor
	page      render.PageOptions
	changes   <-chan watcher.Event
	suppress  bool
	notify    bool

	sessions *session.Directory

	// mu serializes artifact regeneration and source writes.
	mu       sync.Mutex
	lastHash [sha256.Size]byte
	hashed   bool

	workersMu sync.Mutex
	workers   map[string]*worker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// New creates a Broker. Connect may be called before Run.
func New(opts Options) *Broker {
	if opts.Sessions == nil {
		opts.Sessions = session.NewDirectory()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		source:    filepath.Clean(opts.SourcePath),
		output:    opts.OutputPath,
		renderer:  opts.Renderer,
		reconcile: opts.Reconcile,
		sandbox:   opts.Sandbox,
		page:      opts.Page,
		changes:   opts.Changes,
		suppress:  opts.SuppressSelfWrites,
		notify:    opts.NotifyPeersOnSave,
		sessions:  opts.Sessions,
		workers:   make(map[string]*worker),
		ctx:       ctx,
		cancel:    cancel,
		log:       logging.NewLogger("broker"),
	}
}

// Sessions returns the directory of open sessions.
func (b *Broker) Sessions() *session.Directory {
	return b.sessions
}

// Run handles source changes until ctx is cancelled, then closes every
// session and waits for the session workers to finish.
func (b *Broker) Run(ctx context.Context) error {
	defer b.shutdown()

	changes := b.changes
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			_ = b.OnSourceChanged(ev.Path)
		}
	}
}

func (b *Broker) shutdown() {
	b.cancel()
	for _, s := range b.sessions.Snapshot() {
		b.Disconnect(s)
	}
	b.wg.Wait()
}

// Connect registers a new viewer on conn.
func (b *Broker) Connect(conn session.Conn) *session.Session {
	s := session.New(conn)
	w := &worker{
		inbox: make(chan []byte, inboxSize),
		done:  make(chan struct{}),
	}

	b.workersMu.Lock()
	b.workers[s.ID] = w
	b.workersMu.Unlock()
	b.sessions.Add(s)

	b.wg.Add(1)
	go b.serve(s, w)

	b.log.WithField("session", s.ID).Debug("viewer connected")
	return s
}

// Disconnect removes s and closes its connection. Requests still queued for
// s are discarded.
func (b *Broker) Disconnect(s *session.Session) {
	b.workersMu.Lock()
	w, ok := b.workers[s.ID]
	delete(b.workers, s.ID)
	b.workersMu.Unlock()

	if ok {
		close(w.done)
	}
	b.sessions.Remove(s.ID)
	_ = s.Close()

	if ok {
		b.log.WithField("session", s.ID).Debug("viewer disconnected")
	}
}

// Submit queues a raw message from s. It blocks while the session's queue is
// full and returns false once s has been disconnected.
func (b *Broker) Submit(s *session.Session, raw []byte) bool {
	b.workersMu.Lock()
	w, ok := b.workers[s.ID]
	b.workersMu.Unlock()
	if !ok {
		return false
	}

	select {
	case w.inbox <- raw:
		return true
	case <-w.done:
		return false
	case <-b.ctx.Done():
		return false
	}
}

func (b *Broker) serve(s *session.Session, w *worker) {
	defer b.wg.Done()
	for {
		select {
		case raw := <-w.inbox:
			b.dispatch(s, raw)
		case <-w.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Broker) dispatch(s *session.Session, raw []byte) {
	log := b.log.WithField("session", s.ID)

	var envelope contracts.IncomingMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.WithError(err).Warn("ignoring malformed message")
		return
	}

	switch envelope.Type {
	case contracts.MessageTypeSaveContent:
		var msg contracts.SaveContentMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.WithError(err).Warn("ignoring malformed save_content")
			return
		}
		b.OnSaveRequest(s, msg.Content)

	case contracts.MessageTypeExecuteCode:
		var msg contracts.ExecuteCodeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.WithError(err).Warn("ignoring malformed execute_code")
			return
		}
		b.OnExecuteRequest(b.ctx, s, msg)

	default:
		log.WithField("type", envelope.Type).Debug("ignoring unknown message type")
	}
}

// OnSourceChanged regenerates the artifact and broadcasts reload. A failed
// regeneration leaves the previous artifact in place and notifies nobody.
// With self-write suppression on, a change to the source whose content is
// what was last rendered is dropped.
func (b *Broker) OnSourceChanged(path string) error {
	log := b.log.WithField("path", path)

	changed, err := b.regenerateIfChanged(filepath.Clean(path) == b.source)
	if err != nil {
		log.WithError(err).Error("regenerating artifact")
		return err
	}
	if !changed {
		log.Debug("source unchanged since last render")
		return nil
	}

	log.Info("source changed, reloading viewers")
	b.broadcast(contracts.Reload(), "")
	return nil
}

// Regenerate renders the current source into the artifact without notifying
// viewers.
func (b *Broker) Regenerate() error {
	_, err := b.regenerateIfChanged(false)
	return err
}

func (b *Broker) regenerateIfChanged(checkHash bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	source, err := os.ReadFile(b.source)
	if err != nil {
		return false, lderrors.Wrap(err, lderrors.CodeRenderFailed, "reading source")
	}
	if checkHash && b.suppress && b.hashed && sha256.Sum256(source) == b.lastHash {
		return false, nil
	}
	return true, b.regenerateLocked(source)
}

func (b *Broker) regenerateLocked(source []byte) error {
	doc, err := b.renderer.Render(source)
	if err != nil {
		return err
	}
	page := render.Page(doc, b.page)
	if err := writeFileAtomic(b.output, []byte(page)); err != nil {
		return lderrors.Wrap(err, lderrors.CodeRenderFailed, "writing artifact").WithDetail("path", b.output)
	}
	b.lastHash = sha256.Sum256(source)
	b.hashed = true
	return nil
}

// OnSaveRequest reconciles fragment, overwrites the source and acknowledges
// to s only. On failure the source is left untouched.
func (b *Broker) OnSaveRequest(s *session.Session, fragment string) {
	log := b.log.WithField("session", s.ID)

	if err := b.save(fragment); err != nil {
		log.WithError(err).Warn("save failed")
		b.send(s, contracts.ContentSaveFailed(err.Error()))
		return
	}

	log.Info("source saved from viewer")
	b.send(s, contracts.ContentSaved())
	if b.notify {
		b.broadcast(contracts.Reload(), s.ID)
	}
}

func (b *Broker) save(fragment string) error {
	markdown, err := b.reconcile(fragment)
	if err != nil {
		return err
	}
	source := []byte(markdown + "\n")

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := writeFileAtomic(b.source, source); err != nil {
		return lderrors.Wrap(err, lderrors.CodeSaveFailed, "writing source").WithDetail("path", b.source)
	}
	if err := b.regenerateLocked(source); err != nil {
		b.log.WithError(err).Warn("regenerating artifact after save")
	}
	return nil
}

// OnExecuteRequest runs the snippet and reports the outcome to s only.
func (b *Broker) OnExecuteRequest(ctx context.Context, s *session.Session, msg contracts.ExecuteCodeMessage) {
	res := b.sandbox.Execute(ctx, msg.Code, msg.Language)
	b.send(s, contracts.CodeExecutionResultMessage{
		Type:      contracts.MessageTypeCodeExecutionResult,
		Success:   res.Success,
		Output:    res.Output,
		Stderr:    res.Stderr,
		Error:     res.Error,
		Timestamp: msg.Timestamp,
	})
}

// broadcast sends msg to a snapshot of the open sessions, skipping except.
func (b *Broker) broadcast(msg interface{}, except string) {
	for _, s := range b.sessions.Snapshot() {
		if s.ID == except {
			continue
		}
		b.send(s, msg)
	}
}

// send writes msg to s. A dropped connection removes the session silently.
func (b *Broker) send(s *session.Session, msg interface{}) {
	if err := s.Send(msg); err != nil {
		b.log.WithError(err).WithField("session", s.ID).Debug("dropping session")
		b.Disconnect(s)
	}
}
