package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"remora/internal/logger"
	"remora/internal/types"
)

// handleCommand serves the Telegram control channel. Commands are read-only
// except stop, which cancels the run context.
func (a *App) handleCommand(ctx context.Context, cmd string) string {
	switch strings.ToLower(cmd) {
	case "status":
		return a.statusText(ctx)
	case "reload":
		if err := a.reloadFiles(); err != nil {
			return fmt.Sprintf("reload failed: %v", err)
		}
		return "contracts and account config reloaded"
	case "stop":
		logger.Warnf("stop requested via command channel")
		if a.stop != nil {
			a.stop()
		}
		return "shutting down"
	default:
		return "commands: /status /reload /stop"
	}
}

func (a *App) statusText(ctx context.Context) string {
	counts, err := a.led.CountByStatus(ctx)
	if err != nil {
		return fmt.Sprintf("status query failed: %v", err)
	}
	if len(counts) == 0 {
		return "no positions on record"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("positions by status:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %d\n", k, counts[types.PositionStatus(k)])
	}
	return b.String()
}

func (a *App) reloadFiles() error {
	if a.contracts != nil {
		if err := a.contracts.Reload(); err != nil {
			return err
		}
	}
	if a.accounts != nil {
		return a.accounts.Reload()
	}
	return nil
}
