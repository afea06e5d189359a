package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestNewPIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "run", "meetaudio.pid")

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("Failed to create PID file: %v", err)
	}
	defer pf.Remove()

	pid, ok := Read(pidPath)
	if !ok {
		t.Fatal("PID file was not created or is unreadable")
	}
	if pid != os.Getpid() {
		t.Errorf("PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestDuplicateInstance(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetaudio.pid")

	pf1, err := New(pidPath)
	if err != nil {
		t.Fatalf("Failed to create first PID file: %v", err)
	}
	defer pf1.Remove()

	_, err = New(pidPath)
	if err == nil {
		t.Fatal("Expected error when creating duplicate PID file, got nil")
	}
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got: %v", err)
	}
}

func TestStalePIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetaudio.pid")

	stalePID := 99999
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(stalePID)+"\n"), 0644); err != nil {
		t.Fatalf("Failed to create stale PID file: %v", err)
	}

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("Failed to create PID file after removing stale one: %v", err)
	}
	defer pf.Remove()

	if pid, _ := Read(pidPath); pid != os.Getpid() {
		t.Errorf("PID mismatch after stale removal: got %d, want %d", pid, os.Getpid())
	}
}

func TestGarbagePIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetaudio.pid")
	if err := os.WriteFile(pidPath, []byte("not a pid"), 0644); err != nil {
		t.Fatal(err)
	}

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("garbage PID file should be replaced: %v", err)
	}
	defer pf.Remove()
}

func TestRemovePIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetaudio.pid")

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("Failed to create PID file: %v", err)
	}
	if err := pf.Remove(); err != nil {
		t.Errorf("Failed to remove PID file: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists after removal")
	}

	var nilPF *PIDFile
	if err := nilPF.Remove(); err != nil {
		t.Errorf("nil Remove: %v", err)
	}
}

func TestRemoveOnlyOwnPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetaudio.pid")

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("Failed to create PID file: %v", err)
	}

	differentPID := os.Getpid() + 1
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(differentPID)+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write different PID: %v", err)
	}

	pf.Remove()

	if pid, ok := Read(pidPath); !ok || pid != differentPID {
		t.Errorf("PID file changed unexpectedly: got %d (ok=%v), want %d", pid, ok, differentPID)
	}
}

func TestRunning(t *testing.T) {
	dir := t.TempDir()
	pidPath := Path(dir, "meetaudio")
	if pidPath != filepath.Join(dir, "meetaudio.pid") {
		t.Errorf("Path = %s", pidPath)
	}

	if _, ok := Running(pidPath); ok {
		t.Error("Running without a PID file should be false")
	}

	pf, err := New(pidPath)
	if err != nil {
		t.Fatal(err)
	}
	defer pf.Remove()

	if pid, ok := Running(pidPath); !ok || pid != os.Getpid() {
		t.Errorf("Running = %d, %v", pid, ok)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("Current process should be detected as running")
	}
	if isProcessRunning(99999) {
		t.Error("Non-existent process should not be detected as running")
	}
}
