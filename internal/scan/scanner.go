package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/media"
	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/util"
)

// Inventory summarises the files below a media root
type Inventory struct {
	Root        string         `json:"root"`
	Folders     int            `json:"folders"`
	Files       int            `json:"files"`
	Bytes       int64          `json:"bytes"`
	ZeroByte    int            `json:"zero_byte"`
	ByKind      map[string]int `json:"by_kind"`
	FolderNames []string       `json:"folder_names"`
}

// Scanner counts the files of a legacy media tree
type Scanner struct {
	fs          afero.Fs
	concurrency int
	logger      *report.EventLogger
}

// Config holds scanner configuration
type Config struct {
	Fs          afero.Fs // nil = OS filesystem
	Concurrency int
	Logger      *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	return &Scanner{
		fs:          cfg.Fs,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

type folderCounts struct {
	files    int
	bytes    int64
	zeroByte int
	byKind   map[string]int
}

// Scan lists every folder directly below mediaRoot, shot and asset folders
// alike, on a pool of workers. Files loose in mediaRoot are counted too.
// Unreadable folders are logged and left out of the totals
func (s *Scanner) Scan(ctx context.Context, mediaRoot string) (*Inventory, error) {
	infos, err := afero.ReadDir(s.fs, mediaRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read media directory %s: %w", mediaRoot, err)
	}

	inv := &Inventory{Root: mediaRoot, ByKind: make(map[string]int)}
	var dirs []string
	for _, info := range infos {
		if info.IsDir() {
			dirs = append(dirs, info.Name())
			continue
		}
		inv.add(folderCounts{
			files:    1,
			bytes:    info.Size(),
			zeroByte: boolToInt(info.Size() == 0),
			byKind:   map[string]int{media.Classify(info.Name()).String(): 1},
		})
	}
	sort.Strings(dirs)
	inv.FolderNames = dirs

	var bar *progressbar.ProgressBar
	if util.ShowProgress() && len(dirs) > 0 {
		bar = progressbar.NewOptions(len(dirs),
			progressbar.OptionSetDescription("Scanning media"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		processed atomic.Int64
	)
	paths := make(chan string, len(dirs))

	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dir := range paths {
				if ctx.Err() != nil {
					return
				}

				counts, err := s.countFolder(dir)
				processed.Add(1)
				if bar != nil {
					bar.Add(1)
				}
				if err != nil {
					util.WarnLog("Failed to scan %s: %v", dir, err)
					s.logger.LogError(report.EventError, dir, err)
					continue
				}

				mu.Lock()
				inv.add(counts)
				inv.Folders++
				mu.Unlock()
			}
		}()
	}

	for _, name := range dirs {
		paths <- filepath.Join(mediaRoot, name)
	}
	close(paths)
	wg.Wait()

	if bar != nil {
		bar.Finish()
	}
	if err := ctx.Err(); err != nil {
		return inv, err
	}

	util.DebugLog("Scanned %d/%d media folders: %d files, %s",
		processed.Load(), len(dirs), inv.Files, util.FormatBytes(inv.Bytes))
	return inv, nil
}

// countFolder classifies the regular files of one folder. Nested folders
// inside asset categories are walked as well
func (s *Scanner) countFolder(dir string) (folderCounts, error) {
	counts := folderCounts{byKind: make(map[string]int)}
	err := afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		counts.files++
		counts.bytes += info.Size()
		if info.Size() == 0 {
			counts.zeroByte++
		}
		counts.byKind[media.Classify(info.Name()).String()]++
		return nil
	})
	return counts, err
}

func (inv *Inventory) add(c folderCounts) {
	inv.Files += c.files
	inv.Bytes += c.bytes
	inv.ZeroByte += c.zeroByte
	for k, n := range c.byKind {
		inv.ByKind[k] += n
	}
}

// Summary is a one-line description for logs and phase details
func (inv *Inventory) Summary() string {
	return fmt.Sprintf("%s media files in %d folders (%s)",
		util.FormatCount(inv.Files), inv.Folders, util.FormatBytes(inv.Bytes))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
