package config

import "strings"

// Config is the main configuration carrier.
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	ATR       ATRConfig       `toml:"atr"`
	Signal    SignalConfig    `toml:"signal"`
	Account   AccountConfig   `toml:"account"`
	Contracts ContractsConfig `toml:"contracts"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
	Engine    EngineConfig    `toml:"engine"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Reaper    ReaperConfig    `toml:"reaper"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	LogPath     string `toml:"log_path"`
	HTTPAddr    string `toml:"http_addr"`
	DBPath      string `toml:"db_path"`
	JournalPath string `toml:"journal_path"`
}

type MarketConfig struct {
	Name               string `toml:"name"`
	RESTBaseURL        string `toml:"rest_base_url"`
	APIKey             string `toml:"api_key"`
	APISecret          string `toml:"api_secret"`
	ProxyEnabled       bool   `toml:"proxy_enabled"`
	RESTProxyURL       string `toml:"rest_proxy_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	DryRun             bool   `toml:"dry_run"`
	Sim                bool   `toml:"sim"`
}

type ATRConfig struct {
	Interval    string `toml:"interval"`
	Period      int    `toml:"period"`
	PollSeconds int    `toml:"poll_seconds"`
}

type SignalConfig struct {
	WatchDir    string `toml:"watch_dir"`
	PollSeconds int    `toml:"poll_seconds"`
}

type AccountConfig struct {
	Path string `toml:"path"`
}

type ContractsConfig struct {
	Path string `toml:"path"`
}

type DispatchConfig struct {
	PyramideScale           float64 `toml:"pyramide_scale"`
	DefaultCloseRatio       float64 `toml:"default_close_ratio"`
	AdmissionTimeoutSeconds int     `toml:"admission_timeout_seconds"`
	PollSeconds             int     `toml:"poll_seconds"`
}

type EngineConfig struct {
	PollSeconds int   `toml:"poll_seconds"`
	SlipSeed    int64 `toml:"slip_seed"`
}

type ReconcileConfig struct {
	PollSeconds int `toml:"poll_seconds"`
}

type MonitorConfig struct {
	PollSeconds        int     `toml:"poll_seconds"`
	SlBeTriggerATR     float64 `toml:"sl_be_trigger_atr"`
	SlTrailTriggerATR  float64 `toml:"sl_trail_trigger_atr"`
	TrailOffsetATR     float64 `toml:"trail_offset_atr"`
	TpDynTriggerATR    float64 `toml:"tp_dyn_trigger_atr"`
	TpDynMultATR       float64 `toml:"tp_dyn_mult_atr"`
	PyramideTriggerATR float64 `toml:"pyramide_trigger_atr"`
	MaxPyramides       int     `toml:"max_pyramides"`
	PartialCloseRatio  float64 `toml:"partial_close_ratio"`
	MinMfeKeepATR      float64 `toml:"min_mfe_keep_atr"`
	MaxTradeAgeHours   float64 `toml:"max_trade_age_hours"`
	MaxNoMfeAgeHours   float64 `toml:"max_no_mfe_age_hours"`
}

type ReaperConfig struct {
	PollSeconds          int     `toml:"poll_seconds"`
	TicketRetentionHours float64 `toml:"ticket_retention_hours"`
}

type NotifyConfig struct {
	TelegramEnabled bool   `toml:"telegram_enabled"`
	BotToken        string `toml:"bot_token"`
	ChatID          string `toml:"chat_id"`
	CommandsEnabled bool   `toml:"commands_enabled"`
}

// keySet tracks the field paths explicitly set in config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
