package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"remora/internal/logger"
)

// Poller drives a worker on a fixed tick interval. Every lifecycle worker
// runs on its own Poller; there is no other coordination between them.
type Poller struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewPoller(ctx context.Context, name string, interval time.Duration) *Poller {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Poller{
		Name:           name,
		Interval:       interval,
		RunImmediately: true,
		ctx:            ctx,
		nowFn:          time.Now,
	}
}

// Start blocks, invoking task once per interval until the context ends.
// A panicking tick is logged and swallowed so the loop keeps running.
func (p *Poller) Start(task func()) {
	if p == nil {
		return
	}
	if task == nil {
		logger.Warnf("Poller: task is nil, exit")
		return
	}
	if p.Interval <= 0 {
		logger.Warnf("Poller[%s]: invalid interval=%s, exit", p.Name, p.Interval)
		return
	}
	if p.ctx == nil {
		p.ctx = context.Background()
	}
	if p.nowFn == nil {
		p.nowFn = time.Now
	}

	startAt := p.nowFn().UTC()
	logger.Infof("Poller[%s]: started interval=%s run_immediately=%v at=%s",
		p.Name, p.Interval, p.RunImmediately, startAt.Format(time.RFC3339))

	if p.RunImmediately {
		p.safeRun(task)
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			logger.Infof("Poller[%s]: ctx done, exit", p.Name)
			return
		case <-ticker.C:
			p.safeRun(task)
		}
	}
}

func (p *Poller) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Poller[%s]: tick panic recovered: %v\n%s", p.Name, r, debug.Stack())
		}
	}()
	task()
}
