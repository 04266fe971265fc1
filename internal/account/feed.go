// Package account supplies the sizing inputs that live outside the
// lifecycle core: account balance, per-instrument performance stats and the
// market-risk scalar. The file-backed feed mirrors how the rest of the
// system consumes operator-maintained YAML with hot reload.
package account

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"remora/internal/admission"
	"remora/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Snapshot is one consistent read of the feed.
type Snapshot struct {
	Balance    float64
	MarketRisk float64
	Stats      map[string]admission.PerfStats
	LoadedAt   time.Time
}

// FileConfig maps the account file.
type FileConfig struct {
	Balance    float64                        `mapstructure:"balance" yaml:"balance"`
	MarketRisk float64                        `mapstructure:"market_risk" yaml:"market_risk"`
	Stats      map[string]admission.PerfStats `mapstructure:"stats" yaml:"stats"`
}

// Feed watches the account file and serves snapshots.
type Feed struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewFeed(path string) (*Feed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("account feed requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read account file failed: %w", err)
	}
	f := &Feed{path: path, v: v}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := f.Reload(); err != nil {
			logger.Errorf("account feed reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return f, nil
}

// Reload re-reads the account file and swaps in a new snapshot.
func (f *Feed) Reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read account file failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fmt.Errorf("parse account file failed: %w", err)
	}
	if cfg.Balance < 0 {
		return fmt.Errorf("account balance cannot be negative")
	}
	if cfg.MarketRisk == 0 {
		cfg.MarketRisk = 1.0
	}
	stats := make(map[string]admission.PerfStats, len(cfg.Stats))
	for instID, s := range cfg.Stats {
		stats[strings.ToUpper(strings.TrimSpace(instID))] = s
	}
	f.mu.Lock()
	f.snapshot = Snapshot{
		Balance:    cfg.Balance,
		MarketRisk: cfg.MarketRisk,
		Stats:      stats,
		LoadedAt:   time.Now(),
	}
	f.mu.Unlock()
	logger.Infof("account feed loaded balance=%.2f risk=%.2f stats=%d", cfg.Balance, cfg.MarketRisk, len(stats))
	return nil
}

// Snapshot returns the current feed state.
func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap := f.snapshot
	out := make(map[string]admission.PerfStats, len(snap.Stats))
	for k, v := range snap.Stats {
		out[k] = v
	}
	snap.Stats = out
	return snap
}

// StatsFor returns the perf stats for one instrument, nil when absent.
func (f *Feed) StatsFor(instID string) *admission.PerfStats {
	id := strings.ToUpper(strings.TrimSpace(instID))
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.snapshot.Stats[id]; ok {
		out := s
		return &out
	}
	return nil
}
