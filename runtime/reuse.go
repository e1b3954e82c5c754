package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Discovery is the on-disk advertisement of an idle reusable worker.
// Written to <discovery dir>/node-<pid>.json.
type Discovery struct {
	Endpoint    string `json:"endpoint"`
	PID         int    `json:"pid"`
	Fingerprint string `json:"fingerprint"`
	StartedAt   string `json:"started_at"`
}

// Age returns how long the worker has been running.
func (d *Discovery) Age() time.Duration {
	t, err := time.Parse(time.RFC3339, d.StartedAt)
	if err != nil {
		return 0
	}
	return time.Since(t)
}

const (
	lockFileName    = "nodes.lock"
	discoveryPrefix = "node-"
	discoverySuffix = ".json"
)

// DiscoveryDir returns the directory for worker sockets and discovery files,
// creating it if needed. A non-empty override wins; otherwise
// $XDG_RUNTIME_DIR/msbuild-rar, falling back to $TMPDIR/msbuild-rar-$UID.
func DiscoveryDir(override string) (string, error) {
	dir := override
	if dir == "" {
		if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
			dir = filepath.Join(xdg, "msbuild-rar")
		} else {
			dir = filepath.Join(os.TempDir(), fmt.Sprintf("msbuild-rar-%d", os.Getuid()))
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create discovery dir %s: %w", dir, err)
	}
	return dir, nil
}

// DiscoveryPath returns the discovery file of the worker with pid.
func DiscoveryPath(dir string, pid int) string {
	return filepath.Join(dir, discoveryPrefix+strconv.Itoa(pid)+discoverySuffix)
}

// WithDiscoveryLock runs fn while holding an exclusive flock on the
// directory's lock file. Launchers and workers use it so a worker is never
// claimed twice.
func WithDiscoveryLock(dir string, fn func() error) error {
	lockFile, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock: %w", err)
	}
	defer func() {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		_ = lockFile.Close()
	}()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	return fn()
}

// ReadDiscovery reads and parses a discovery file.
func ReadDiscovery(path string) (*Discovery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var disc Discovery
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, fmt.Errorf("parse discovery: %w", err)
	}
	if disc.Endpoint == "" {
		return nil, errors.New("discovery file missing endpoint")
	}
	return &disc, nil
}

// WriteDiscovery atomically writes a discovery file.
func WriteDiscovery(path string, disc *Discovery) error {
	data, err := json.MarshalIndent(disc, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RemoveDiscovery deletes the discovery file of pid. A missing file is not an error.
func RemoveDiscovery(dir string, pid int) error {
	err := os.Remove(DiscoveryPath(dir, pid))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ListDiscovery returns every readable discovery file in dir, oldest PID first.
// Unreadable files are skipped.
func ListDiscovery(dir string) ([]*Discovery, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read discovery dir: %w", err)
	}

	var out []*Discovery
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, discoveryPrefix) || !strings.HasSuffix(name, discoverySuffix) {
			continue
		}
		disc, err := ReadDiscovery(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		out = append(out, disc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// Alive reports whether the advertising process still exists.
func (d *Discovery) Alive() bool {
	return processAlive(d.PID)
}

// processAlive reports whether a process with pid exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// reusableCandidates returns the live advertisements matching fingerprint
// and removes entries whose process is gone. Must run under WithDiscoveryLock.
func reusableCandidates(dir, fingerprint string) ([]*Discovery, error) {
	all, err := ListDiscovery(dir)
	if err != nil {
		return nil, err
	}
	var out []*Discovery
	for _, disc := range all {
		if !processAlive(disc.PID) {
			_ = RemoveDiscovery(dir, disc.PID)
			continue
		}
		if disc.Fingerprint == fingerprint {
			out = append(out, disc)
		}
	}
	return out, nil
}
