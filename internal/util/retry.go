package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of retry attempts
	InitialWait time.Duration // Initial wait duration (will be doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// MediaRetryConfig is used for media tree copies, which often live on
// mounted shares
func MediaRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 4,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     10 * time.Second,
	}
}

// transientErrnos are errors a media copy or SQLite open can recover from
// by waiting: busy files, interrupted calls and flaky mounted shares
var transientErrnos = []syscall.Errno{
	syscall.EAGAIN,
	syscall.EBUSY,
	syscall.ETXTBSY,
	syscall.EINTR,
	syscall.ETIMEDOUT,
	syscall.ESTALE,
	syscall.EIO,
}

var transientMessages = []string{
	"database is locked",
	"sqlite_busy",
	"resource busy",
	"sharing violation",
	"stale file handle",
	"timed out",
	"temporarily unavailable",
	"input/output error",
}

// IsRetryableError reports whether err is a transient filesystem or
// database lock error. Missing files and permission errors are final
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return false
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs operation until it succeeds, fails with a
// non-transient error or cfg.MaxAttempts is reached. The wait doubles after
// each attempt, capped at cfg.MaxWait
func RetryWithBackoff[T any](cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var (
		result T
		err    error
	)
	attempts := max(cfg.MaxAttempts, 1)
	wait := cfg.InitialWait
	for attempt := 1; attempt <= attempts; attempt++ {
		if result, err = operation(); err == nil {
			if attempt > 1 {
				DebugLog("%s succeeded on attempt %d/%d", operationName, attempt, attempts)
			}
			return result, nil
		}
		if !IsRetryableError(err) {
			return result, err
		}
		if attempt == attempts {
			break
		}

		DebugLog("%s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, attempts, wait, err)
		time.Sleep(wait)
		if wait *= 2; wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	WarnLog("%s failed after %d attempts: %v", operationName, attempts, err)
	return result, fmt.Errorf("max retries exceeded (%d attempts): %w", attempts, err)
}

// Retry executes a function with retry logic (no return value)
// Convenience wrapper for operations that don't return a value
func Retry(cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// RetryableOpen opens a file with retry logic
func RetryableOpen(fsys afero.Fs, path string, cfg *RetryConfig) (afero.File, error) {
	return RetryWithBackoff(cfg, func() (afero.File, error) {
		return fsys.Open(path)
	}, fmt.Sprintf("open(%s)", path))
}

// RetryableCreate creates a file with retry logic
func RetryableCreate(fsys afero.Fs, path string, cfg *RetryConfig) (afero.File, error) {
	return RetryWithBackoff(cfg, func() (afero.File, error) {
		return fsys.Create(path)
	}, fmt.Sprintf("create(%s)", path))
}

// RetryableStat stats a file with retry logic
func RetryableStat(fsys afero.Fs, path string, cfg *RetryConfig) (fs.FileInfo, error) {
	return RetryWithBackoff(cfg, func() (fs.FileInfo, error) {
		return fsys.Stat(path)
	}, fmt.Sprintf("stat(%s)", path))
}

// RetryableRemove removes a file with retry logic
func RetryableRemove(fsys afero.Fs, path string, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return fsys.Remove(path)
	}, fmt.Sprintf("remove(%s)", path))
}

// RetryableRename renames a file with retry logic
func RetryableRename(fsys afero.Fs, oldpath, newpath string, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return fsys.Rename(oldpath, newpath)
	}, fmt.Sprintf("rename(%s -> %s)", oldpath, newpath))
}

// RetryableMkdirAll creates a directory with retry logic
func RetryableMkdirAll(fsys afero.Fs, path string, perm os.FileMode, cfg *RetryConfig) error {
	return Retry(cfg, func() error {
		return fsys.MkdirAll(path, perm)
	}, fmt.Sprintf("mkdir(%s)", path))
}
