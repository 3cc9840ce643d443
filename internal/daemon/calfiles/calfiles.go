// Package calfiles indexes the calibration files the robot tooling writes
// under its cache directory.
//
// The tree is walked once at startup and kept live by an fsnotify watcher
// with a debounce window, so HTTP polls read from memory instead of
// re-walking the cache on every request. Leader arms calibrate under
// teleoperators/, everything else under robots/.
package calfiles

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

const (
	defaultDebounce = 500 * time.Millisecond
	sweepInterval   = 100 * time.Millisecond
)

// Side names under the cache root.
const (
	sideRobots        = "robots"
	sideTeleoperators = "teleoperators"
)

// FileInfo describes one calibration file. Modified is epoch seconds.
type FileInfo struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
}

// Report answers a calibration-file query for one robot ID.
type Report struct {
	RobotID   string     `json:"robot_id"`
	ArmType   string     `json:"arm_type"`
	CacheDir  string     `json:"cache_directory"`
	Files     []FileInfo `json:"files"`
	FileCount int        `json:"file_count"`
}

// Index is the live calibration-file index. Safe for concurrent use.
type Index struct {
	log      logging.Logger
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	stopCh chan struct{}
	doneCh chan struct{}

	mu            sync.Mutex
	running       bool
	watcherClosed bool
	rootWatched   bool
	files         map[string][]FileInfo
	dirty         bool
	lastEvent     time.Time
}

// NewIndex prepares an index rooted at the calibration cache directory.
// A debounce of zero selects the default window.
func NewIndex(log logging.Logger, root string, debounce time.Duration) (*Index, error) {
	if log == nil {
		log = logging.New(nil)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Index{
		log:      log,
		root:     root,
		debounce: debounce,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		files:    make(map[string][]FileInfo),
	}, nil
}

// Start performs the initial scan and begins watching. Non-blocking; a
// missing cache directory is tolerated and picked up once it appears.
func (ix *Index) Start(ctx context.Context) error {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return nil
	}
	ix.running = true
	ix.mu.Unlock()

	ix.rescan(ctx)
	go ix.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the event loop to exit. Safe to
// call whether or not Start ran.
func (ix *Index) Stop() {
	ix.mu.Lock()
	wasRunning := ix.running
	closed := ix.watcherClosed
	ix.running = false
	ix.watcherClosed = true
	ix.mu.Unlock()

	if wasRunning {
		close(ix.stopCh)
		<-ix.doneCh
	}
	if !closed {
		if err := ix.watcher.Close(); err != nil {
			ix.log.Warn(context.Background(), "failed to close calibration watcher", "error", err)
		}
	}
}

// Check reports the indexed files whose name contains robotID. armType
// "leader" reads the teleoperators side, everything else the robots side.
func (ix *Index) Check(robotID, armType string) Report {
	side := sideRobots
	if armType == "leader" {
		side = sideTeleoperators
	}
	cacheDir := filepath.Join(ix.root, side)

	ix.mu.Lock()
	// Without a watch on the root there is nothing keeping the cache
	// fresh, so fall back to walking on demand.
	if !ix.rootWatched {
		ix.scanLocked(context.Background())
	}
	indexed := ix.files[side]
	ix.mu.Unlock()

	files := make([]FileInfo, 0, len(indexed))
	for _, f := range indexed {
		if strings.Contains(f.Name, robotID) {
			files = append(files, f)
		}
	}
	return Report{
		RobotID:   robotID,
		ArmType:   armType,
		CacheDir:  cacheDir,
		Files:     files,
		FileCount: len(files),
	}
}

func (ix *Index) run(ctx context.Context) {
	defer close(ix.doneCh)

	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ix.stopCh:
			return
		case event, ok := <-ix.watcher.Events:
			if !ok {
				return
			}
			ix.handleEvent(event)
		case err, ok := <-ix.watcher.Errors:
			if !ok {
				return
			}
			ix.log.Warn(ctx, "calibration watcher error", "error", err)
		case <-sweep.C:
			ix.mu.Lock()
			settle := ix.dirty && time.Since(ix.lastEvent) >= ix.debounce
			ix.mu.Unlock()
			if settle {
				ix.rescan(ctx)
			}
		}
	}
}

func (ix *Index) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Chmod != 0 && event.Op&^fsnotify.Chmod == 0 {
		return
	}
	// Watch new directories right away so events inside them are not
	// missed while the rescan debounces.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := ix.watcher.Add(event.Name); err != nil {
				ix.log.Debug(context.Background(), "failed to watch new directory",
					"path", event.Name, "error", err)
			}
		}
	}
	ix.mu.Lock()
	ix.dirty = true
	ix.lastEvent = time.Now()
	ix.mu.Unlock()
}

func (ix *Index) rescan(ctx context.Context) {
	ix.mu.Lock()
	ix.scanLocked(ctx)
	ix.mu.Unlock()
}

// scanLocked rebuilds the index and (re)establishes watches. Callers hold
// ix.mu.
func (ix *Index) scanLocked(ctx context.Context) {
	ix.dirty = false

	if !ix.rootWatched {
		if err := ix.watcher.Add(ix.root); err != nil {
			ix.log.Debug(ctx, "calibration cache not watchable yet",
				"path", ix.root, "error", err)
		} else {
			ix.rootWatched = true
		}
	}

	for _, side := range []string{sideRobots, sideTeleoperators} {
		ix.files[side] = ix.walkSide(ctx, filepath.Join(ix.root, side))
	}
}

func (ix *Index) walkSide(ctx context.Context, dir string) []FileInfo {
	var files []FileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			ix.log.Warn(ctx, "calibration scan error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if err := ix.watcher.Add(path); err != nil {
				ix.log.Debug(ctx, "failed to watch directory", "path", path, "error", err)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Name:     d.Name(),
			Path:     path,
			Size:     info.Size(),
			Modified: float64(info.ModTime().UnixNano()) / float64(time.Second),
		})
		return nil
	})
	if err != nil {
		ix.log.Warn(ctx, "calibration scan failed", "dir", dir, "error", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}
