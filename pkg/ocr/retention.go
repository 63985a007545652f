package ocr

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// DefaultMaxProcessedFiles bounds the processed-artifact directory.
const DefaultMaxProcessedFiles = 400

// Retention owns a flat directory of processed screenshot artifacts and keeps it below a
// fixed file count by evicting the oldest-mtime files. All writes and evictions go through
// one mutex so a save never races its own eviction pass.
type Retention struct {
	mu  sync.Mutex
	dir string
	max int
	now func() time.Time
}

// NewRetention returns a Retention over dir keeping at most max files (DefaultMaxProcessedFiles
// when max <= 0). The directory is created on first save.
func NewRetention(dir string, max int) *Retention {
	if max <= 0 {
		max = DefaultMaxProcessedFiles
	}
	return &Retention{dir: dir, max: max, now: time.Now}
}

// Save writes img into the retention directory under the production naming scheme
// "[BOT][ YYYY-MM-DD hh:mm:ss ][TYPE].png" and evicts oldest files until the directory is
// within bounds again. Returns the written path.
func (r *Retention) Save(img image.Image, kind string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("processed dir: %w", err)
	}
	name := fmt.Sprintf("[BOT][ %s ][%s].png", r.now().Format("2006-01-02 15:04:05"), kind)
	path := filepath.Join(r.dir, name)
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save processed: %w", err)
	}
	if err := r.evictLocked(); err != nil {
		return path, err
	}
	return path, nil
}

// evictLocked removes oldest-mtime files until at most max remain. Caller holds the mutex.
func (r *Retention) evictLocked() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	type fileInfo struct {
		name string
		mod  time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), mod: info.ModTime()})
	}
	if len(files) <= r.max {
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files[:len(files)-r.max] {
		// best effort; a failed remove only delays eviction to the next save
		_ = os.Remove(filepath.Join(r.dir, f.name))
	}
	return nil
}
