// Package launcher spawns and supervises the external worker processes
// used by subprocess diagnostic routines.
//
// Exit codes are preserved exactly as produced by the child; routines
// decode them into pass/fail results. Combined stdout/stderr is captured
// in memory because routine output is bounded (worker tools emit at most
// a few hundred lines).
package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
)

// Result is the outcome of a finished child process.
type Result struct {
	// ExitCode is the child's exit status, exactly as produced. -1 means
	// the child was killed by a signal before exiting.
	ExitCode int

	// Output is the combined stdout and stderr of the child.
	Output []byte
}

// Process is a running child.
type Process interface {
	// Wait blocks until the child exits and returns its result. Wait must
	// be called exactly once.
	Wait() (*Result, error)

	// Kill terminates the child with SIGKILL. Safe to call concurrently
	// with Wait; Wait still returns after a Kill.
	Kill()
}

// Launcher spawns external executables.
type Launcher interface {
	// Launch starts argv[0] with the remaining arguments, running in dir
	// when dir is non-empty. A Launch error means the child never
	// started.
	Launch(argv []string, dir string) (Process, error)
}

// ExecLauncher runs children via os/exec.
type ExecLauncher struct{}

// Launch starts the command.
func (ExecLauncher) Launch(argv []string, dir string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	return &execProcess{cmd: cmd, buf: &buf}, nil
}

type execProcess struct {
	cmd *exec.Cmd
	buf *bytes.Buffer

	killOnce sync.Once
}

func (p *execProcess) Wait() (*Result, error) {
	err := p.cmd.Wait()
	res := &Result{Output: p.buf.Bytes()}

	if err == nil {
		res.ExitCode = 0
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return nil, fmt.Errorf("wait: %w", err)
}

func (p *execProcess) Kill() {
	p.killOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGKILL)
		}
	})
}

// ScratchDir creates a unique working directory for one routine invocation
// under root. The returned cleanup removes the directory and everything in
// it.
func ScratchDir(root string) (string, func(), error) {
	dir := filepath.Join(root, uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return dir, cleanup, nil
}

var _ Launcher = ExecLauncher{}
