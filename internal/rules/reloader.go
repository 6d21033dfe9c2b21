package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/navsight/advisor/internal/dsl"
	"github.com/navsight/advisor/pkg/schema"
)

// ReloaderConfig controls how a Reloader refreshes its rule-set.
type ReloaderConfig struct {
	// Path is the rule file to load and watch.
	Path string

	// DebounceInterval is the quiet period after a file event before reloading
	// (default 100ms), preventing reload storms on editors that write in chunks.
	DebounceInterval time.Duration

	// CronSchedule optionally refreshes on a schedule (standard cron syntax),
	// for deployments on network mounts where fsnotify events are unreliable.
	// Empty disables the scheduled refresh.
	CronSchedule string

	// OnSwap is invoked with the new set after every successful reload.
	OnSwap func(*schema.RuleSet)
}

// Reloader owns the active RuleSet for a process. The initial load is eager
// and fatal on error; later reloads are best-effort: a failed reload keeps
// the previous set serving, since a partially-loaded rule-set cannot be
// trusted. Current() is safe from any goroutine.
type Reloader struct {
	cfg    ReloaderConfig
	limits dsl.Limits
	logger *slog.Logger

	current atomic.Pointer[schema.RuleSet]

	mu       sync.Mutex
	running  bool
	stopping bool
	stop     chan struct{}
	done     chan struct{}
}

// NewReloader loads the rule file once and returns a Reloader holding it.
func NewReloader(cfg ReloaderConfig, limits dsl.Limits, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 100 * time.Millisecond
	}

	rs, err := Load(cfg.Path, limits)
	if err != nil {
		return nil, err
	}

	r := &Reloader{cfg: cfg, limits: limits, logger: logger}
	r.current.Store(rs)
	return r, nil
}

// Current returns the active rule-set. The returned set is immutable and may
// be shared read-only across concurrent evaluation runs without locking.
func (r *Reloader) Current() *schema.RuleSet {
	return r.current.Load()
}

// Watch blocks, reloading on file changes (and on the cron schedule when
// configured) until the context is cancelled or Stop is called.
func (r *Reloader) Watch(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reloader already running")
	}
	r.running = true
	r.stopping = false
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(r.done)
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save and a
	// direct file watch dies with the old inode.
	dir := filepath.Dir(r.cfg.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var sched *cron.Cron
	if r.cfg.CronSchedule != "" {
		sched = cron.New()
		if _, err := sched.AddFunc(r.cfg.CronSchedule, func() { r.reload("schedule") }); err != nil {
			return fmt.Errorf("bad cron schedule %q: %w", r.cfg.CronSchedule, err)
		}
		sched.Start()
		defer sched.Stop()
	}

	r.logger.Info("rule reloader started",
		"path", r.cfg.Path,
		"debounce_ms", r.cfg.DebounceInterval.Milliseconds(),
		"cron", r.cfg.CronSchedule,
	)

	var debounce *time.Timer
	var debounceC <-chan time.Time

	target := filepath.Clean(r.cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stop:
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(r.cfg.DebounceInterval)
			} else {
				debounce.Reset(r.cfg.DebounceInterval)
			}
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			r.reload("file change")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("rule watcher error", "error", err)
		}
	}
}

// Stop unblocks Watch and waits for it to exit.
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running || r.stopping {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	stop, done := r.stop, r.done
	r.mu.Unlock()

	close(stop)
	<-done
}

func (r *Reloader) reload(reason string) {
	rs, err := Load(r.cfg.Path, r.limits)
	if err != nil {
		r.logger.Warn("rule reload failed, keeping previous set",
			"path", r.cfg.Path,
			"reason", reason,
			"error", err,
		)
		return
	}
	r.current.Store(rs)
	r.logger.Info("rule-set reloaded",
		"path", r.cfg.Path,
		"reason", reason,
		"rules", rs.Len(),
	)
	if r.cfg.OnSwap != nil {
		r.cfg.OnSwap(rs)
	}
}
