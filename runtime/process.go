package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

const (
	pollInterval          = 50 * time.Millisecond
	defaultStartupTimeout = 10 * time.Second
)

// LaunchOptions describe how a worker process is started. Args renders them
// as the worker command line.
type LaunchOptions struct {
	// ExePath is the worker executable.
	ExePath string
	// NodeReuse keeps the worker alive after the launcher disconnects.
	NodeReuse bool
	// LowPriority lowers the worker's scheduling priority.
	LowPriority bool
	// DiscoveryDir is where the worker listens and advertises itself.
	DiscoveryDir string
	// IdleTimeout bounds how long a reusable worker waits for a new session.
	// Zero leaves the worker default.
	IdleTimeout time.Duration
}

// Args returns the worker arguments. Reuse and priority are always passed
// explicitly so worker defaults never leak into the launch.
func (o LaunchOptions) Args() []string {
	args := []string{
		"node",
		"--nologo",
		"--nodemode=3",
		"--nodereuse=" + strconv.FormatBool(o.NodeReuse),
		"--low=" + strconv.FormatBool(o.LowPriority),
	}
	if o.DiscoveryDir != "" {
		args = append(args, "--discovery-dir="+o.DiscoveryDir)
	}
	if o.IdleTimeout > 0 {
		args = append(args, "--idle-timeout="+o.IdleTimeout.String())
	}
	return args
}

// Process is a started worker.
type Process interface {
	PID() int
	// Endpoint is the address the worker listens on.
	Endpoint() string
	Kill() error
}

// Spawner starts worker processes. Tests substitute an in-process fake.
type Spawner interface {
	Spawn(ctx context.Context, opts LaunchOptions) (Process, error)
}

// Dialer opens a connection to a worker endpoint.
type Dialer func(ctx context.Context, endpoint string) (net.Conn, error)

// DialUnix is the default Dialer.
func DialUnix(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}

// SocketPath returns the endpoint a worker with pid listens on in dir.
func SocketPath(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("node-%d.sock", pid))
}

// LogPath returns the file that receives the output of the worker with pid.
func LogPath(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("node-%d.log", pid))
}

// ExecSpawner starts the worker executable as a child process and waits for
// its socket to appear.
type ExecSpawner struct {
	// StartupTimeout bounds the wait for the socket. Zero means 10s.
	StartupTimeout time.Duration
}

type execProcess struct {
	cmd      *exec.Cmd
	endpoint string
}

func (p *execProcess) PID() int         { return p.cmd.Process.Pid }
func (p *execProcess) Endpoint() string { return p.endpoint }
func (p *execProcess) Kill() error      { return p.cmd.Process.Kill() }

// Spawn starts opts.ExePath with opts.Args.
//
// Uses exec.Command (not CommandContext): a reusable worker must outlive the
// launcher, so ctx only bounds the startup wait.
func (s *ExecSpawner) Spawn(ctx context.Context, opts LaunchOptions) (Process, error) {
	if opts.DiscoveryDir == "" {
		return nil, errors.New("spawn: discovery dir not set")
	}

	// The pid is unknown until Start, so output goes to a temporary file
	// that is renamed to LogPath afterwards.
	logFile, err := os.CreateTemp(opts.DiscoveryDir, "node-*.log.tmp")
	if err != nil {
		return nil, fmt.Errorf("open node log: %w", err)
	}

	//nolint:gosec // G204: executable comes from launcher configuration
	cmd := exec.Command(opts.ExePath, opts.Args()...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if opts.NodeReuse {
		// New session so the worker outlives the launcher.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		_ = os.Remove(logFile.Name())
		return nil, fmt.Errorf("start node: %w", err)
	}
	// On failure the output stays in the temporary file.
	_ = os.Rename(logFile.Name(), LogPath(opts.DiscoveryDir, cmd.Process.Pid))

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		_ = logFile.Close()
	}()

	proc := &execProcess{cmd: cmd, endpoint: SocketPath(opts.DiscoveryDir, cmd.Process.Pid)}
	if err := s.waitForSocket(ctx, proc.endpoint, exited); err != nil {
		_ = proc.Kill()
		return nil, err
	}
	return proc, nil
}

// waitForSocket polls until endpoint is a socket, the process exits, or the
// startup timeout elapses.
func (s *ExecSpawner) waitForSocket(ctx context.Context, endpoint string, exited <-chan error) error {
	timeout := s.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if fi, err := os.Stat(endpoint); err == nil && fi.Mode()&fs.ModeSocket != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-exited:
			return fmt.Errorf("node exited before listening: %v", err)
		case <-deadline.C:
			return fmt.Errorf("node did not listen on %s within %s", endpoint, timeout)
		case <-ticker.C:
		}
	}
}
