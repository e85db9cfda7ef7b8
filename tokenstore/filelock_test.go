package tokenstore

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileLock_AcquireRelease(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")
	lockPath := tokenFile + ".lock"

	lock, err := acquireFileLock(tokenFile)
	if err != nil {
		t.Fatalf("acquireFileLock() error = %v", err)
	}
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Errorf("lock file was not created")
	}

	if err := lock.release(); err != nil {
		t.Errorf("release() error = %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still present after release")
	}
}

func TestFileLock_SerializesHolders(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")

	const workers = 8
	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer wg.Done()
			lock, err := acquireFileLock(tokenFile)
			if err != nil {
				t.Errorf("worker %d: acquireFileLock() error = %v", id, err)
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			if err := lock.release(); err != nil {
				t.Errorf("worker %d: release() error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	if overlap.Load() {
		t.Errorf("two holders were inside the lock at the same time")
	}
}

func TestFileLock_StaleLockIsReclaimed(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")
	lockPath := tokenFile + ".lock"

	stale, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("failed to create stale lock: %v", err)
	}
	stale.Close()

	old := time.Now().Add(-lockStaleAfter - 5*time.Second)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("failed to age lock: %v", err)
	}

	lock, err := acquireFileLock(tokenFile)
	if err != nil {
		t.Fatalf("acquireFileLock() after stale lock error = %v", err)
	}
	defer lock.release()

	if lock.lockFile == nil {
		t.Errorf("lock file handle is nil")
	}
}

func TestFileLock_WaitsForActiveHolder(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")

	first, err := acquireFileLock(tokenFile)
	if err != nil {
		t.Fatalf("acquireFileLock() error = %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		second, err := acquireFileLock(tokenFile)
		if err == nil {
			second.release()
		}
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired the lock while the first still held it")
	case <-time.After(250 * time.Millisecond):
	}

	first.release()

	select {
	case err := <-acquired:
		if err != nil {
			t.Errorf("second acquire failed after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Errorf("second acquire did not complete after release")
	}
}

func BenchmarkFileLock_AcquireRelease(b *testing.B) {
	tokenFile := filepath.Join(b.TempDir(), "tokens.json")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lock, err := acquireFileLock(tokenFile)
		if err != nil {
			b.Fatalf("acquireFileLock() error = %v", err)
		}
		if err := lock.release(); err != nil {
			b.Fatalf("release() error = %v", err)
		}
	}
}
