package monitor

import (
	"context"
	"time"

	"remora/internal/ledger"
	"remora/internal/logger"
	"remora/internal/store"
	"remora/internal/types"
)

// ReaperConfig controls the slow background sweep. TicketRetention <= 0
// keeps acknowledged tickets forever, which is the default: the ticket
// table doubles as the execution audit trail.
type ReaperConfig struct {
	AdmissionTimeout time.Duration
	TicketRetention  time.Duration
}

func (c ReaperConfig) withDefaults() ReaperConfig {
	if c.AdmissionTimeout <= 0 {
		c.AdmissionTimeout = 10 * time.Minute
	}
	return c
}

// Reaper is the garbage pass over durable state: expires requests nobody
// picked up, removes monitor rows whose position reached a terminal state,
// and optionally prunes old acknowledged tickets.
type Reaper struct {
	cfg      ReaperConfig
	led      *ledger.Ledger
	tickets  *store.TicketRepo
	monitors *store.MonitorRepo
}

func NewReaper(cfg ReaperConfig, led *ledger.Ledger, tickets *store.TicketRepo, monitors *store.MonitorRepo) *Reaper {
	return &Reaper{cfg: cfg.withDefaults(), led: led, tickets: tickets, monitors: monitors}
}

func (r *Reaper) Tick(ctx context.Context) {
	if n, err := r.led.Expire(ctx, r.cfg.AdmissionTimeout); err != nil {
		logger.Errorf("reaper: expire pass failed: %v", err)
	} else if n > 0 {
		logger.Infof("reaper: expired %d stale requests", n)
	}

	rows, err := r.monitors.List(ctx)
	if err != nil {
		logger.Errorf("reaper: list monitors failed: %v", err)
	} else {
		for i := range rows {
			pos, err := r.led.Get(ctx, rows[i].UID)
			switch {
			case err == store.ErrNotFound:
			case err != nil:
				logger.Errorf("reaper: uid=%s: %v", rows[i].UID, err)
				continue
			case pos.Status != types.StatusCloseDone && pos.Status != types.StatusExpired:
				continue
			}
			if err := r.monitors.Delete(ctx, rows[i].UID); err != nil {
				logger.Errorf("reaper: purge uid=%s failed: %v", rows[i].UID, err)
			} else {
				logger.Infof("reaper: purged monitor row uid=%s", rows[i].UID)
			}
		}
	}

	if r.cfg.TicketRetention > 0 {
		cutoff := time.Now().Add(-r.cfg.TicketRetention).UnixMilli()
		if n, err := r.tickets.PruneTerminal(ctx, cutoff); err != nil {
			logger.Errorf("reaper: ticket prune failed: %v", err)
		} else if n > 0 {
			logger.Infof("reaper: pruned %d acknowledged tickets", n)
		}
	}
}
