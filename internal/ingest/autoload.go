package ingest

import (
	"errors"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// AutoloadConfig configures the template directory autoload service.
type AutoloadConfig struct {
	Dir            string
	RescanSchedule string        // cron expression, default "@hourly"
	Debounce       time.Duration // quiet window after fs events, default 500ms
}

// Autoload keeps the rule catalog in sync with a directory of CSVs: one
// scan at startup, a debounced rescan on filesystem changes, and a cron
// rescan as a consistency net.
type Autoload struct {
	importer *Importer
	dir      string
	debounce time.Duration

	cron        *cron.Cron
	cronEntryID cron.EntryID

	scanMu   sync.Mutex // serializes rescans
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAutoload(importer *Importer, cfg AutoloadConfig) *Autoload {
	if cfg.RescanSchedule == "" {
		cfg.RescanSchedule = "@hourly"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	c := cron.New()
	a := &Autoload{
		importer: importer,
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		cron:     c,
		stopCh:   make(chan struct{}),
	}

	entryID, err := c.AddFunc(cfg.RescanSchedule, func() { a.Rescan("schedule") })
	if err != nil {
		log.Printf("[ingest] invalid cron expression %q: %v", cfg.RescanSchedule, err)
	} else {
		a.cronEntryID = entryID
	}
	return a
}

// Start runs the initial scan, begins watching the directory, and starts
// the rescan schedule. A missing or unwatchable directory is tolerated;
// the schedule still covers it.
func (a *Autoload) Start() {
	a.Rescan("startup")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[ingest] fs watcher unavailable: %v", err)
	} else if err := w.Add(a.dir); err != nil {
		log.Printf("[ingest] watch %s: %v", a.dir, err)
		w.Close()
	} else {
		a.wg.Add(1)
		go a.watch(w)
	}

	a.cron.Start()
}

// Stop halts the watcher and the schedule. Safe to call more than once.
func (a *Autoload) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.cron.Stop()
	a.wg.Wait()
}

// Rescan imports every rule CSV under the directory. Concurrent calls
// serialize behind one mutex so file and cron triggers cannot interleave.
func (a *Autoload) Rescan(reason string) {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	stats, err := a.importer.ImportDir(a.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("[ingest] rescan (%s): template dir %s not found", reason, a.dir)
			return
		}
		log.Printf("[ingest] rescan (%s): %v", reason, err)
		return
	}
	log.Printf("[ingest] rescan (%s): %d file(s), %d template(s), %d rule(s)",
		reason, stats.Files, stats.Templates, stats.Rules)
}

// watch owns the fsnotify watcher and collapses bursts of events into one
// rescan per quiet window.
func (a *Autoload) watch(w *fsnotify.Watcher) {
	defer a.wg.Done()
	defer w.Close()

	debounce := time.NewTimer(a.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-a.stopCh:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !isRuleFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(a.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("[ingest] watch %s: %v", a.dir, err)
		case <-debounce.C:
			a.Rescan("fs change")
		}
	}
}

func isRuleFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
