package config

import "strings"

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogPath       = "/data/logs/remora.log"
	defaultAppHTTPAddr      = ":9992"
	defaultAppDBPath        = "/data/db/remora.db"
	defaultAppJournalPath   = "/data/db/journal.db"
	defaultMarketName       = "binance"
	defaultMarketREST       = "https://fapi.binance.com"
	defaultMarketTimeout    = 10
	defaultATRInterval      = "15m"
	defaultATRPeriod        = 14
	defaultATRPoll          = 60
	defaultSignalDir        = "/data/signals"
	defaultSignalPoll       = 5
	defaultContractsPath    = "configs/contracts.yaml"
	defaultAccountPath      = "configs/account.yaml"
	defaultDispatchPoll     = 5
	defaultAdmissionTimeout = 600
	defaultEnginePoll       = 5
	defaultReconcilePoll    = 5
	defaultMonitorPoll      = 10
	defaultReaperPoll       = 300
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.ATR.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Account.applyDefaults(keys)
	c.Contracts.applyDefaults(keys)
	c.Dispatch.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Reconcile.applyDefaults(keys)
	c.Monitor.applyDefaults(keys)
	c.Reaper.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
		stringFieldDefault("app.journal_path", &a.JournalPath, defaultAppJournalPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.name", &m.Name, defaultMarketName),
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		intFieldDefault("market.http_timeout_seconds", &m.HTTPTimeoutSeconds, defaultMarketTimeout),
	)
}

func (a *ATRConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("atr.interval", &a.Interval, defaultATRInterval),
		intFieldDefault("atr.period", &a.Period, defaultATRPeriod),
		intFieldDefault("atr.poll_seconds", &a.PollSeconds, defaultATRPoll),
	)
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("signal.watch_dir", &s.WatchDir, defaultSignalDir),
		intFieldDefault("signal.poll_seconds", &s.PollSeconds, defaultSignalPoll),
	)
}

func (a *AccountConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("account.path", &a.Path, defaultAccountPath),
	)
}

func (c *ContractsConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("contracts.path", &c.Path, defaultContractsPath),
	)
}

func (d *DispatchConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("dispatch.pyramide_scale", &d.PyramideScale, 0.5),
		floatFieldDefault("dispatch.default_close_ratio", &d.DefaultCloseRatio, 0.5),
		intFieldDefault("dispatch.admission_timeout_seconds", &d.AdmissionTimeoutSeconds, defaultAdmissionTimeout),
		intFieldDefault("dispatch.poll_seconds", &d.PollSeconds, defaultDispatchPoll),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("engine.poll_seconds", &e.PollSeconds, defaultEnginePoll),
	)
}

func (r *ReconcileConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("reconcile.poll_seconds", &r.PollSeconds, defaultReconcilePoll),
	)
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("monitor.poll_seconds", &m.PollSeconds, defaultMonitorPoll),
		floatFieldDefault("monitor.sl_be_trigger_atr", &m.SlBeTriggerATR, 1.0),
		floatFieldDefault("monitor.sl_trail_trigger_atr", &m.SlTrailTriggerATR, 2.0),
		floatFieldDefault("monitor.trail_offset_atr", &m.TrailOffsetATR, 1.0),
		floatFieldDefault("monitor.tp_dyn_trigger_atr", &m.TpDynTriggerATR, 1.5),
		floatFieldDefault("monitor.tp_dyn_mult_atr", &m.TpDynMultATR, 3.0),
		floatFieldDefault("monitor.pyramide_trigger_atr", &m.PyramideTriggerATR, 1.2),
		intFieldDefault("monitor.max_pyramides", &m.MaxPyramides, 2),
		floatFieldDefault("monitor.partial_close_ratio", &m.PartialCloseRatio, 0.5),
		floatFieldDefault("monitor.min_mfe_keep_atr", &m.MinMfeKeepATR, 0.3),
		floatFieldDefault("monitor.max_trade_age_hours", &m.MaxTradeAgeHours, 48),
		floatFieldDefault("monitor.max_no_mfe_age_hours", &m.MaxNoMfeAgeHours, 6),
	)
}

func (r *ReaperConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("reaper.poll_seconds", &r.PollSeconds, defaultReaperPoll),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
