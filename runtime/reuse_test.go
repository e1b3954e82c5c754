package runtime

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDiscoveryDir_Override(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "rar")
	got, err := DiscoveryDir(dir)
	if err != nil {
		t.Fatalf("DiscoveryDir failed: %v", err)
	}
	if got != dir {
		t.Errorf("DiscoveryDir = %q, want %q", got, dir)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("dir not created: %v", err)
	}
	if fi.Mode().Perm() != 0700 {
		t.Errorf("perm = %o, want 700", fi.Mode().Perm())
	}
}

func TestDiscoveryDir_XDGRuntime(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", xdg)

	got, err := DiscoveryDir("")
	if err != nil {
		t.Fatalf("DiscoveryDir failed: %v", err)
	}
	if want := filepath.Join(xdg, "msbuild-rar"); got != want {
		t.Errorf("DiscoveryDir = %q, want %q", got, want)
	}
}

func TestDiscovery_WriteReadRemove(t *testing.T) {
	dir := t.TempDir()
	started := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	disc := &Discovery{
		Endpoint:    SocketPath(dir, 100),
		PID:         100,
		Fingerprint: "0000010b:0123456789abcdef",
		StartedAt:   started,
	}

	path := DiscoveryPath(dir, 100)
	if err := WriteDiscovery(path, disc); err != nil {
		t.Fatalf("WriteDiscovery failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain")
	}

	got, err := ReadDiscovery(path)
	if err != nil {
		t.Fatalf("ReadDiscovery failed: %v", err)
	}
	if *got != *disc {
		t.Errorf("ReadDiscovery = %+v, want %+v", got, disc)
	}
	if age := got.Age(); age < time.Minute {
		t.Errorf("Age = %v, want >= 1m", age)
	}

	if err := RemoveDiscovery(dir, 100); err != nil {
		t.Fatalf("RemoveDiscovery failed: %v", err)
	}
	if err := RemoveDiscovery(dir, 100); err != nil {
		t.Errorf("RemoveDiscovery of missing file: %v", err)
	}
}

func TestReadDiscovery_Invalid(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "node-1.json")
	if err := os.WriteFile(garbage, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDiscovery(garbage); err == nil {
		t.Error("expected parse error")
	}

	noEndpoint := filepath.Join(dir, "node-2.json")
	if err := os.WriteFile(noEndpoint, []byte(`{"pid": 2}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDiscovery(noEndpoint); err == nil {
		t.Error("expected missing endpoint error")
	}
}

func TestListDiscovery_SortsAndSkips(t *testing.T) {
	dir := t.TempDir()
	for _, pid := range []int{30, 10, 20} {
		if err := WriteDiscovery(DiscoveryPath(dir, pid), &Discovery{Endpoint: "e", PID: pid}); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated and unreadable entries are skipped.
	_ = os.WriteFile(filepath.Join(dir, "node-40.json"), []byte("{"), 0600)
	_ = os.WriteFile(filepath.Join(dir, "node-60.log"), []byte("log"), 0600)
	_ = os.WriteFile(filepath.Join(dir, "node-50.json.tmp"), []byte("{}"), 0600)

	list, err := ListDiscovery(dir)
	if err != nil {
		t.Fatalf("ListDiscovery failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i, want := range []int{10, 20, 30} {
		if list[i].PID != want {
			t.Errorf("list[%d].PID = %d, want %d", i, list[i].PID, want)
		}
	}
}

func TestReusableCandidates(t *testing.T) {
	dir := t.TempDir()
	self := os.Getpid()
	const deadPID = 99999999

	_ = WriteDiscovery(DiscoveryPath(dir, self), &Discovery{Endpoint: "live", PID: self, Fingerprint: "match"})
	_ = WriteDiscovery(DiscoveryPath(dir, deadPID), &Discovery{Endpoint: "dead", PID: deadPID, Fingerprint: "match"})

	got, err := reusableCandidates(dir, "match")
	if err != nil {
		t.Fatalf("reusableCandidates failed: %v", err)
	}
	if len(got) != 1 || got[0].Endpoint != "live" {
		t.Fatalf("candidates = %+v, want only the live entry", got)
	}
	if _, err := os.Stat(DiscoveryPath(dir, deadPID)); !os.IsNotExist(err) {
		t.Error("dead entry should be removed")
	}
	if _, err := os.Stat(DiscoveryPath(dir, self)); err != nil {
		t.Error("live entry should remain until claimed")
	}

	none, err := reusableCandidates(dir, "other")
	if err != nil {
		t.Fatalf("reusableCandidates failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("candidates = %+v, want none", none)
	}
}

func TestWithDiscoveryLock_Serializes(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithDiscoveryLock(dir, func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithDiscoveryLock failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
}
