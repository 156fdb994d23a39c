package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

const lockPollInterval = 50 * time.Millisecond

// A lock file whose PID has not been written yet is only reclaimed after
// this long, so a writer that just created it is not robbed
const unwrittenLockGrace = time.Second

// AtomicWriteConfig controls how reports and test files are written
type AtomicWriteConfig struct {
	Sync        bool          // fsync before rename and after appends
	LockTimeout time.Duration // how long to wait for another writer's lock
	TempSuffix  string        // suffix of the sibling temp file
	Backup      bool          // copy existing content to <path>.bak.<stamp> first
}

// DefaultAtomicConfig provides sensible defaults for report output
func DefaultAtomicConfig() AtomicWriteConfig {
	return AtomicWriteConfig{
		LockTimeout: 5 * time.Second,
		TempSuffix:  ".testgap.tmp",
	}
}

// AtomicWriter replaces files through a temp file + rename and serializes
// every write to a path, across goroutines and processes, with a sidecar
// <path>.lock file holding the owner's PID
type AtomicWriter struct {
	config AtomicWriteConfig

	mu   sync.Mutex
	held map[string]*os.File // path -> open lock file
}

// NewAtomicWriter fills zero fields of config from DefaultAtomicConfig
func NewAtomicWriter(config AtomicWriteConfig) *AtomicWriter {
	defaults := DefaultAtomicConfig()
	if config.TempSuffix == "" {
		config.TempSuffix = defaults.TempSuffix
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaults.LockTimeout
	}
	return &AtomicWriter{
		config: config,
		held:   make(map[string]*os.File),
	}
}

// WriteJSON encodes v with a 2-space indent and writes it atomically.
// HTML characters are left unescaped.
func (aw *AtomicWriter) WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return aw.WriteFile(path, buf.Bytes())
}

// WriteFile atomically replaces path with content, keeping its permissions
func (aw *AtomicWriter) WriteFile(path string, content []byte) error {
	return aw.withLock(path, func() error {
		mode := fs.FileMode(0o644)
		if info, err := os.Stat(path); err == nil {
			mode = info.Mode().Perm()
			if err := aw.backup(path); err != nil {
				return err
			}
		}
		return aw.replace(path, content, mode)
	})
}

// AppendFile appends content to path, creating it if needed. The append
// itself is not atomic; the lock only keeps cooperating writers apart.
func (aw *AtomicWriter) AppendFile(path string, content []byte) error {
	return aw.withLock(path, func() error {
		if _, err := os.Stat(path); err == nil {
			if err := aw.backup(path); err != nil {
				return err
			}
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open %s for append: %w", path, err)
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			return fmt.Errorf("failed to append to %s: %w", path, err)
		}
		if aw.config.Sync {
			if err := f.Sync(); err != nil {
				f.Close()
				return fmt.Errorf("failed to sync %s: %w", path, err)
			}
		}
		return f.Close()
	})
}

func (aw *AtomicWriter) replace(path string, content []byte, mode fs.FileMode) error {
	tempPath := path + aw.config.TempSuffix
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = f.Write(content)
	if err == nil && aw.config.Sync {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

// backup copies path to path.bak.<timestamp> when enabled
func (aw *AtomicWriter) backup(path string) error {
	if !aw.config.Backup {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s for backup: %w", path, err)
	}
	target := fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

func (aw *AtomicWriter) withLock(path string, fn func() error) error {
	if err := aw.acquireLock(path); err != nil {
		return fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	defer aw.releaseLock(path)
	return fn()
}

// acquireLock creates <path>.lock exclusively, reclaiming it when the PID
// inside is dead. aw.mu is never held while waiting.
func (aw *AtomicWriter) acquireLock(path string) error {
	lockPath := path + ".lock"
	deadline := time.Now().Add(aw.config.LockTimeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			aw.mu.Lock()
			aw.held[path] = f
			aw.mu.Unlock()
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		if seen, stale := aw.inspectLock(lockPath); stale {
			reclaimStale(lockPath, seen)
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for lock on %s", path)
		}
		time.Sleep(lockPollInterval)
	}
}

func (aw *AtomicWriter) releaseLock(path string) {
	aw.mu.Lock()
	f, ok := aw.held[path]
	delete(aw.held, path)
	aw.mu.Unlock()

	if ok {
		f.Close()
		os.Remove(f.Name())
	}
}

// isLockStale reports whether the lock's owner is gone
func (aw *AtomicWriter) isLockStale(lockPath string) bool {
	_, stale := aw.inspectLock(lockPath)
	return stale
}

// inspectLock returns the lock file it judged and whether its owner is gone.
// Unreadable content counts as stale, except for a freshly created lock still
// being written. A missing lock is stale with a nil info.
func (aw *AtomicWriter) inspectLock(lockPath string) (fs.FileInfo, bool) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return nil, true
	}
	content, err := os.ReadFile(lockPath)
	if err != nil {
		return info, true
	}

	if len(bytes.TrimSpace(content)) == 0 {
		return info, time.Since(info.ModTime()) > unwrittenLockGrace
	}

	var pid int
	if _, err := fmt.Sscanf(string(content), "%d", &pid); err != nil {
		return info, true
	}
	return info, !isProcessAlive(pid)
}

// reclaimStale moves the judged lock aside and deletes it. When another
// writer replaced the lock in the meantime, the moved file is that writer's
// live lock and is linked back instead. Reports whether a stale lock went.
func reclaimStale(lockPath string, seen fs.FileInfo) bool {
	if seen == nil {
		return false
	}

	aside := fmt.Sprintf("%s.stale.%d.%d", lockPath, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(lockPath, aside); err != nil {
		return false
	}
	defer os.Remove(aside)

	moved, err := os.Stat(aside)
	if err == nil && os.SameFile(seen, moved) {
		return true
	}
	// Fails if a third writer already holds a new lock, which then wins
	os.Link(aside, lockPath)
	return false
}

// Cleanup releases every lock this writer still holds
func (aw *AtomicWriter) Cleanup() {
	aw.mu.Lock()
	paths := make([]string, 0, len(aw.held))
	for path := range aw.held {
		paths = append(paths, path)
	}
	aw.mu.Unlock()

	for _, path := range paths {
		aw.releaseLock(path)
	}
}
