// Package lockfile implements the process-wide guard that prevents two
// mirror engine runs from touching the same local root concurrently.
//
// No third-party locking library appears anywhere in the example corpus
// (the one repo that shells out to flock does so via the external
// flock(1) binary, not a Go package), so this package is built directly
// on the platform lock calls: syscall.Flock on unix and
// golang.org/x/sys/windows LockFileEx on Windows.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// heldLock tracks one lock file this process currently has flocked, so a
// second Acquire for the same path from the same process can join the
// existing hold instead of deadlocking against its own earlier fd.
type heldLock struct {
	file *os.File
	refs int
}

var (
	heldMu sync.Mutex
	held   = map[string]*heldLock{}
)

// Lock represents a held process lock on a single file path. It is
// re-entrant within the process that holds it: a second Acquire call for
// the same path from the same process joins the first hold's refcount
// rather than taking a fresh flock on a new file descriptor, which on
// POSIX would otherwise block or fail even within one process.
type Lock struct {
	path string
	pid  int
}

// Acquire takes an exclusive lock on the file at path, creating it (and
// its parent directory) if necessary. It returns ErrLocked if another
// process already holds the lock, annotated with that process's PID when
// the lock file's contents can be read.
func Acquire(path string) (*Lock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	heldMu.Lock()
	if hl, ok := held[abs]; ok {
		hl.refs++
		heldMu.Unlock()
		return &Lock{path: abs, pid: os.Getpid()}, nil
	}
	heldMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", abs, err)
	}

	if err := tryLock(f); err != nil {
		holder := readPID(abs)
		f.Close()
		return nil, &ErrLocked{Path: abs, HolderPID: holder}
	}

	pid := os.Getpid()
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(fmt.Sprintf("%d\n", pid)), 0)
	}

	heldMu.Lock()
	held[abs] = &heldLock{file: f, refs: 1}
	heldMu.Unlock()

	return &Lock{path: abs, pid: pid}, nil
}

// Release drops one reference to the lock. The underlying flock is only
// released, and the file descriptor closed, once every Acquire call for
// this path from this process has had a matching Release. The lock file
// itself is left in place; its PID content is only advisory and is
// overwritten by the next Acquire.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""

	heldMu.Lock()
	hl, ok := held[path]
	if !ok {
		heldMu.Unlock()
		return nil
	}
	hl.refs--
	if hl.refs > 0 {
		heldMu.Unlock()
		return nil
	}
	delete(held, path)
	heldMu.Unlock()

	err := unlock(hl.file)
	closeErr := hl.file.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// ErrLocked indicates another process currently holds the lock.
type ErrLocked struct {
	Path      string
	HolderPID int
}

func (e *ErrLocked) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("lock file %s is held by process %d", e.Path, e.HolderPID)
	}
	return fmt.Sprintf("lock file %s is held by another process", e.Path)
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var pid int
	fmt.Sscanf(string(data), "%d", &pid)
	return pid
}
