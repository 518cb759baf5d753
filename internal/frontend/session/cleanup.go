package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/marcus-qen/monfront/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultCleanupSchedule runs expired-session cleanup every ten minutes.
const DefaultCleanupSchedule = "@every 10m"

// Cleaner deletes expired sessions on a cron schedule.
type Cleaner struct {
	store  *Store
	logger *zap.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	started bool
}

// NewCleaner validates the schedule and prepares the cron runner.
func NewCleaner(store *Store, schedule string, logger *zap.Logger) (*Cleaner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", schedule, err)
	}

	c := &Cleaner{
		store:  store,
		logger: logger,
		cron:   cron.New(),
	}
	c.cron.Schedule(spec, cron.FuncJob(func() { c.RunOnce() }))
	return c, nil
}

// RunOnce deletes expired sessions immediately.
func (c *Cleaner) RunOnce() int {
	n, err := c.store.Cleanup()
	if err != nil {
		c.logger.Warn("session cleanup failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		metrics.RecordSessionsExpired(int64(n))
		c.logger.Debug("expired sessions removed", zap.Int("count", n))
	}
	return n
}

// Start starts the schedule. It is safe to call Start multiple times.
func (c *Cleaner) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.cron.Start()
}

// Stop stops the schedule and waits for a running cleanup to finish.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()
	<-c.cron.Stop().Done()
}
