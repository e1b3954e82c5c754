package runtime

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
	"time"
)

func TestLaunchOptions_Args(t *testing.T) {
	tests := []struct {
		name string
		opts LaunchOptions
		want []string
	}{
		{
			name: "defaults",
			opts: LaunchOptions{},
			want: []string{"node", "--nologo", "--nodemode=3", "--nodereuse=false", "--low=false"},
		},
		{
			name: "reuse and low priority",
			opts: LaunchOptions{NodeReuse: true, LowPriority: true},
			want: []string{"node", "--nologo", "--nodemode=3", "--nodereuse=true", "--low=true"},
		},
		{
			name: "discovery and idle timeout",
			opts: LaunchOptions{NodeReuse: true, DiscoveryDir: "/run/rar", IdleTimeout: 15 * time.Minute},
			want: []string{
				"node", "--nologo", "--nodemode=3", "--nodereuse=true", "--low=false",
				"--discovery-dir=/run/rar", "--idle-timeout=15m0s",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Args(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSocketPath(t *testing.T) {
	if got, want := SocketPath("/run/rar", 42), filepath.Join("/run/rar", "node-42.sock"); got != want {
		t.Errorf("SocketPath = %q, want %q", got, want)
	}
}

func TestLogPath(t *testing.T) {
	if got, want := LogPath("/run/rar", 42), filepath.Join("/run/rar", "node-42.log"); got != want {
		t.Errorf("LogPath = %q, want %q", got, want)
	}
}

func TestExecSpawner_MissingExecutable(t *testing.T) {
	dir := t.TempDir()
	s := &ExecSpawner{StartupTimeout: 200 * time.Millisecond}
	_, err := s.Spawn(context.Background(), LaunchOptions{
		ExePath:      filepath.Join(t.TempDir(), "does-not-exist"),
		DiscoveryDir: dir,
	})
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("discovery dir has %d entries, want none", len(entries))
	}
}

func TestExecSpawner_LogNamedAfterPID(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	s := &ExecSpawner{StartupTimeout: 2 * time.Second}
	if _, err := s.Spawn(context.Background(), LaunchOptions{ExePath: "/bin/sh", DiscoveryDir: dir}); err == nil {
		t.Fatal("expected error when the worker exits without listening")
	}

	logs, err := filepath.Glob(filepath.Join(dir, "node-*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %q, want one node-<pid>.log", logs)
	}
	if !regexp.MustCompile(`^node-[0-9]+\.log$`).MatchString(filepath.Base(logs[0])) {
		t.Errorf("log file = %q", filepath.Base(logs[0]))
	}
	if tmp, _ := filepath.Glob(filepath.Join(dir, "*.tmp")); len(tmp) != 0 {
		t.Errorf("temporary log left behind: %q", tmp)
	}
}

func TestExecSpawner_ExitsBeforeListening(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not available")
	}
	s := &ExecSpawner{StartupTimeout: 2 * time.Second}
	start := time.Now()
	_, err := s.Spawn(context.Background(), LaunchOptions{
		ExePath:      "/bin/true",
		DiscoveryDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error when the worker exits without listening")
	}
	if time.Since(start) > time.Second {
		t.Errorf("spawn took %v, want early failure on exit", time.Since(start))
	}
}
