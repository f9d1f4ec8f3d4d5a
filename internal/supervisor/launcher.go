package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// State is the subprocess lifecycle state.
type State int

const (
	StateRunning State = iota
	StateExited
)

func (s State) String() string {
	if s == StateExited {
		return "exited"
	}
	return "running"
}

// LaunchSpec describes the agent process.
type LaunchSpec struct {
	Command string
	Args    []string
	Dir     string
	// Env entries ("KEY=value") override the inherited environment.
	Env []string
	// Unset names variables removed from the inherited environment.
	Unset []string
}

// Handle controls a launched process.
type Handle interface {
	// Poll reports the state without blocking. The exit code is only
	// meaningful once the state is StateExited.
	Poll() (State, int)
	// Stop asks the process to terminate and waits for it to exit.
	Stop() error
	PID() int
}

// Launcher starts the agent process.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)
}

// stopGrace is how long Stop waits after SIGTERM before killing.
const stopGrace = 30 * time.Second

// ExecLauncher runs the agent with os/exec.
type ExecLauncher struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Launch starts spec. The process is not bound to ctx; use Handle.Stop.
func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = BuildEnv(os.Environ(), spec.Env, spec.Unset)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exited   bool
	exitCode int
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	h.mu.Unlock()
	close(h.done)
}

func (h *execHandle) Poll() (State, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return StateExited, h.exitCode
	}
	return StateRunning, 0
}

func (h *execHandle) Stop() error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal agent: %w", err)
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(stopGrace):
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill agent: %w", err)
	}
	<-h.done
	return nil
}

func (h *execHandle) PID() int {
	return h.cmd.Process.Pid
}

// BuildEnv merges overrides into base and drops the unset names.
func BuildEnv(base, overrides, unset []string) []string {
	drop := make(map[string]bool, len(unset)+len(overrides))
	for _, name := range unset {
		drop[name] = true
	}
	for _, kv := range overrides {
		name, _, _ := strings.Cut(kv, "=")
		drop[name] = true
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if drop[name] {
			continue
		}
		out = append(out, kv)
	}
	return append(out, overrides...)
}
