package smconfig

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when another process holds the config lock
// for longer than the caller is willing to wait.
var ErrLockTimeout = errors.New("smconfig: timed out waiting for config lock")

// DefaultLockTimeout bounds how long UpdateGlobalAt waits for the lock.
const DefaultLockTimeout = 10 * time.Second

const lockRetryInterval = 25 * time.Millisecond

type fileLock struct {
	f *os.File
}

// LockExclusive takes the exclusive lock on lockPath, polling until
// timeout. A non-positive timeout tries once.
func LockExclusive(lockPath string, timeout time.Duration) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if ok {
			return &fileLock{f: f}, nil
		}
		if !time.Now().Before(deadline) {
			_ = f.Close()
			return nil, ErrLockTimeout
		}
		time.Sleep(lockRetryInterval)
	}
}

func (l *fileLock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unlock(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}
