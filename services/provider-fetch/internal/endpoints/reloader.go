package endpoints

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "@every 1m"

// Reloader re-reads an endpoints file on a cron schedule. A failed reload
// keeps the last good snapshot.
type Reloader struct {
	mu    sync.Mutex
	path  string
	pools *Pools
	log   *zap.Logger
	cron  *cron.Cron
}

func NewReloader(path string, pools *Pools, log *zap.Logger) *Reloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reloader{path: path, pools: pools, log: log}
}

// Reload runs one refresh. Only one refresh runs at a time.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, err := LoadFile(r.path)
	if err != nil {
		r.log.Warn("endpoints reload failed, keeping previous lists",
			zap.String("path", r.path), zap.Error(err))
		return err
	}
	r.pools.Replace(l)
	s := r.pools.Snapshot()
	r.log.Info("endpoints reloaded",
		zap.String("path", r.path),
		zap.Int("proxies", len(s.Proxies)),
		zap.Int("provider_apis", len(s.ProviderAPIs)),
		zap.Int("m3u8_proxies", len(s.M3U8Proxies)))
	return nil
}

// Start schedules Reload. An empty schedule uses DefaultSchedule.
func (r *Reloader) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { _ = r.Reload() }); err != nil {
		return fmt.Errorf("endpoints reload schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts the schedule and waits for a running reload to finish.
func (r *Reloader) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
