package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
)

// Checker periodically snapshots stored runs for the API and forwards the
// alerts each snapshot raises. An alert type that was delivered within the
// cooldown is not sent again.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	last     *MetricsSnapshot
	lastSent map[AlertType]time.Time
}

// NewChecker wires a collector and alerter to cfg's schedule.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  5 * time.Minute,
		lookback:  24,
		cooldown:  time.Duration(cfg.AlertCooldownMinutes) * time.Minute,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
	if cfg.CheckIntervalSecs > 0 {
		c.interval = time.Duration(cfg.CheckIntervalSecs) * time.Second
	}
	if cfg.LookbackWindowHours > 0 {
		c.lookback = cfg.LookbackWindowHours
	}
	return c
}

// Run checks at once and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
		zap.Duration("cooldown", c.cooldown),
	)

	tick := time.NewTicker(c.interval)
	defer tick.Stop()
	for {
		if _, err := c.Check(ctx); err != nil && ctx.Err() == nil {
			log.Error("monitoring: check failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-tick.C:
		}
	}
}

// Check takes one snapshot, keeps it for Last, and sends the alerts it
// raises that are not cooling down. It returns every raised alert.
func (c *Checker) Check(ctx context.Context) ([]Alert, error) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return nil, err
	}

	alerts := c.alerter.Evaluate(snap)
	due := c.admit(snap, alerts)
	if len(due) > 0 {
		c.alerter.SendAlerts(ctx, due)
	}
	zap.L().Debug("monitoring: check complete",
		zap.Int("raised", len(alerts)),
		zap.Int("suppressed", len(alerts)-len(due)),
		zap.Int("dlq_depth", snap.DLQDepth),
	)
	return alerts, nil
}

// admit stores snap and filters alerts down to those outside the cooldown,
// stamping them as sent.
func (c *Checker) admit(snap *MetricsSnapshot, alerts []Alert) []Alert {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = snap
	var due []Alert
	for _, a := range alerts {
		if at, ok := c.lastSent[a.Type]; ok && c.cooldown > 0 && now.Sub(at) < c.cooldown {
			continue
		}
		c.lastSent[a.Type] = now
		due = append(due, a)
	}
	return due
}

// Last returns the latest snapshot, or nil before the first check.
func (c *Checker) Last() *MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
