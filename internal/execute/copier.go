package execute

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/util"
)

// Verification modes applied after each copy
const (
	VerifyNone = "none"
	VerifySize = "size"
	VerifyHash = "hash"
)

// Copier copies media files and folders atomically
type Copier struct {
	fs          afero.Fs
	verifyMode  string // "none", "size", "hash"
	bufferSize  int    // Buffer size for file copying (bytes)
	retryConfig *util.RetryConfig
	logger      *report.EventLogger
}

// Config holds copier configuration
type Config struct {
	Fs          afero.Fs          // nil = OS filesystem
	VerifyMode  string            // "none", "size", "hash"
	BufferSize  int               // Buffer size for file copying (0 = use default)
	RetryConfig *util.RetryConfig // Retry configuration (nil = single attempt)
	Logger      *report.EventLogger
}

// New creates a new Copier
func New(cfg *Config) *Copier {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.VerifyMode == "" {
		cfg.VerifyMode = VerifySize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128 * 1024
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = &util.RetryConfig{
			MaxAttempts: 1,
			InitialWait: 0,
			MaxWait:     0,
		}
	}

	return &Copier{
		fs:          cfg.Fs,
		verifyMode:  cfg.VerifyMode,
		bufferSize:  cfg.BufferSize,
		retryConfig: cfg.RetryConfig,
		logger:      cfg.Logger,
	}
}

// Fs returns the filesystem the copier works on
func (c *Copier) Fs() afero.Fs {
	return c.fs
}

// Result represents the outcome of a tree copy
type Result struct {
	Files         int
	BytesWritten  int64
	ZeroBytePaths []string // destination paths of copied empty files
	Errors        []error
}

// CopyTree copies every file below srcDir into dstDir, keeping relative
// paths. Per-file failures are collected in the result; the returned error
// is set only when srcDir cannot be walked or ctx is cancelled
func (c *Copier) CopyTree(ctx context.Context, srcDir, dstDir string) (*Result, error) {
	res := &Result{}

	if err := util.RetryableMkdirAll(c.fs, dstDir, 0755, c.retryConfig); err != nil {
		return res, fmt.Errorf("failed to create directory: %w", err)
	}

	err := afero.Walk(c.fs, srcDir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)

		if info.IsDir() {
			if rel == "." {
				return nil
			}
			if err := util.RetryableMkdirAll(c.fs, target, 0755, c.retryConfig); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("failed to create directory %s: %w", target, err))
			}
			return nil
		}

		n, err := c.CopyFile(ctx, p, target)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Errors = append(res.Errors, fmt.Errorf("failed to copy %s: %w", p, err))
			return nil
		}
		res.Files++
		res.BytesWritten += n
		if n == 0 {
			res.ZeroBytePaths = append(res.ZeroBytePaths, target)
		}
		return nil
	})

	return res, err
}

// CopyFile copies a file atomically using a .part temporary file and
// verifies the result
func (c *Copier) CopyFile(ctx context.Context, srcPath, destPath string) (int64, error) {
	start := time.Now()
	n, err := c.copyFile(ctx, srcPath, destPath)
	if err == nil {
		err = c.verify(srcPath, destPath)
		if err != nil {
			util.RetryableRemove(c.fs, destPath, c.retryConfig)
		}
	}
	c.logger.LogCopy(srcPath, destPath, n, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Copier) copyFile(ctx context.Context, srcPath, destPath string) (int64, error) {
	destDir := filepath.Dir(destPath)
	if err := util.RetryableMkdirAll(c.fs, destDir, 0755, c.retryConfig); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := util.RetryableOpen(c.fs, srcPath, c.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	tempPath := destPath + ".part"
	dest, err := util.RetryableCreate(c.fs, tempPath, c.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	bytesWritten, err := copyWithContext(ctx, dest, src, c.bufferSize)
	closeErr := dest.Close()

	if err != nil {
		util.RetryableRemove(c.fs, tempPath, c.retryConfig)
		return 0, fmt.Errorf("failed to copy: %w", err)
	}
	if closeErr != nil {
		util.RetryableRemove(c.fs, tempPath, c.retryConfig)
		return 0, fmt.Errorf("failed to close %s: %w", tempPath, closeErr)
	}

	if err := util.RetryableRename(c.fs, tempPath, destPath, c.retryConfig); err != nil {
		util.RetryableRemove(c.fs, tempPath, c.retryConfig)
		return 0, fmt.Errorf("failed to rename: %w", err)
	}

	util.DebugLog("Copied: %s -> %s (%s)", srcPath, destPath, util.FormatBytes(bytesWritten))
	return bytesWritten, nil
}

func (c *Copier) verify(srcPath, destPath string) error {
	switch c.verifyMode {
	case VerifySize:
		ok, err := c.verifySize(srcPath, destPath)
		if err != nil {
			return fmt.Errorf("failed to verify size: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", util.ErrSizeMismatch, destPath)
		}
	case VerifyHash:
		ok, err := c.verifyHash(srcPath, destPath)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("hash mismatch: %s", destPath)
		}
	}
	return nil
}

// verifySize compares source and destination sizes
func (c *Copier) verifySize(srcPath, destPath string) (bool, error) {
	srcStat, err := util.RetryableStat(c.fs, srcPath, c.retryConfig)
	if err != nil {
		return false, err
	}
	destStat, err := util.RetryableStat(c.fs, destPath, c.retryConfig)
	if err != nil {
		return false, err
	}
	return srcStat.Size() == destStat.Size(), nil
}

// verifyHash verifies file content using SHA1
func (c *Copier) verifyHash(srcPath, destPath string) (bool, error) {
	srcHash, err := util.GenerateContentHash(c.fs, srcPath)
	if err != nil {
		return false, fmt.Errorf("failed to hash source: %w", err)
	}

	destHash, err := util.GenerateContentHash(c.fs, destPath)
	if err != nil {
		return false, fmt.Errorf("failed to hash dest: %w", err)
	}

	return srcHash == destHash, nil
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = 128 * 1024
	}

	buf := make([]byte, bufferSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}
	return written, nil
}
