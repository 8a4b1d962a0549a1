// Package sandbox runs code snippets from the live page in a child process
// with a hard wall-clock timeout.
//
// Each run writes the snippet to a fresh temporary file, resolves the
// language tag to a command line and spawns it in its own process group.
// When the timeout fires first the whole group is killed. The temporary
// source file is removed on every path; artifacts the process creates on its
// own, such as compiled binaries, are not tracked.
package sandbox

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	lderrors "livedoc/internal/errors"
	"livedoc/internal/logging"
)

const (
	DefaultTimeout = 30 * time.Second

	// waitDelay bounds how long Wait blocks on output pipes held open by
	// processes that outlived the killed group leader.
	waitDelay = 2 * time.Second
)

// Result is the outcome of one execution.
type Result struct {
	Success  bool
	Output   string
	Stderr   string
	Error    string
	ExitCode int
	Duration time.Duration
	// Err carries the structured failure when Success is false.
	Err error
}

// Options configures a Sandbox.
type Options struct {
	Timeout time.Duration
	// TempDir holds the snippet files. Empty means os.TempDir().
	TempDir  string
	Executor Executor
	// OnStart, when set, receives the pid of every spawned process.
	OnStart func(pid int)
}

// Sandbox executes snippets. It is safe for concurrent use.
type Sandbox struct {
	timeout  time.Duration
	tempDir  string
	executor Executor
	onStart  func(pid int)
	log      *logrus.Entry
}

// New creates a Sandbox from opts.
func New(opts Options) *Sandbox {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Executor == nil {
		opts.Executor = RealExecutor{}
	}
	return &Sandbox{
		timeout:  opts.Timeout,
		tempDir:  opts.TempDir,
		executor: opts.Executor,
		onStart:  opts.OnStart,
		log:      logging.NewLogger("sandbox"),
	}
}

// Timeout returns the wall-clock limit applied to each run.
func (s *Sandbox) Timeout() time.Duration {
	return s.timeout
}

// Execute runs code as languageTag. Failures are reported in the Result,
// never retried.
func (s *Sandbox) Execute(ctx context.Context, code, languageTag string) Result {
	start := time.Now()
	res := s.execute(ctx, code, languageTag)
	res.Duration = time.Since(start)
	if res.Err != nil {
		res.Error = res.Err.Error()
	}

	s.log.WithFields(logrus.Fields{
		"language": languageTag,
		"success":  res.Success,
		"exit":     res.ExitCode,
		"duration": res.Duration,
	}).Debug("execution finished")
	return res
}

func (s *Sandbox) execute(ctx context.Context, code, languageTag string) Result {
	lang, ok := Lookup(languageTag)
	if !ok {
		return failed(lderrors.New(lderrors.CodeUnsupportedLanguage, fmt.Sprintf("Unsupported language: %s", languageTag)))
	}

	src, err := writeSource(s.tempDir, lang.Extension, code)
	if err != nil {
		return failed(lderrors.Wrap(err, lderrors.CodeSpawnFailure, "writing snippet"))
	}
	defer func() {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("path", src).Warn("removing snippet file")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	argv := lang.Command(src)
	cmd := s.executor.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(src)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	isolate(cmd)

	if err := cmd.Start(); err != nil {
		return failed(lderrors.Wrap(err, lderrors.CodeSpawnFailure, fmt.Sprintf("starting %s", argv[0])))
	}
	if s.onStart != nil {
		s.onStart(cmd.Process.Pid)
	}

	waitErr := cmd.Wait()
	res := Result{Output: stdout.String(), Stderr: stderr.String()}

	if waitErr != nil && runCtx.Err() != nil {
		res.ExitCode = -1
		if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) {
			res.Err = lderrors.New(lderrors.CodeTimeout, fmt.Sprintf("Execution timed out after %s", s.timeout))
		} else {
			res.Err = lderrors.Wrap(runCtx.Err(), lderrors.CodeSpawnFailure, "execution cancelled")
		}
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.Success = true
	case stderrors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		res.Err = lderrors.New(lderrors.CodeNonZeroExit, fmt.Sprintf("Process exited with code %d", res.ExitCode)).
			WithDetail("exit_code", res.ExitCode)
	default:
		res.ExitCode = -1
		res.Err = lderrors.Wrap(waitErr, lderrors.CodeSpawnFailure, "waiting for process")
	}
	return res
}

func writeSource(dir, ext, code string) (string, error) {
	f, err := os.CreateTemp(dir, "livedoc-*"+ext)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func failed(err error) Result {
	return Result{ExitCode: -1, Err: err}
}
