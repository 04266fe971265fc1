package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"remora/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileConfig maps the contracts file.
type FileConfig struct {
	Contracts map[string]Contract `mapstructure:"contracts" yaml:"contracts"`
	Default   *Contract           `mapstructure:"default" yaml:"default"`
}

// Snapshot is the published contract set.
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Contracts map[string]Contract
	Default   Contract
}

var contractSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"min_trade_qty":    map[string]interface{}{"type": "number", "minimum": 0},
		"size_step":        map[string]interface{}{"type": "number", "minimum": 0},
		"volume_decimals":  map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 12},
		"min_notional_usd": map[string]interface{}{"type": "number", "minimum": 0},
		"max_order_qty":    map[string]interface{}{"type": "number", "minimum": 0},
	},
}

// Registry manages contract metadata loaded from a YAML file and reloads it
// when the file changes.
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry reads the contracts file and watches it for updates.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("contract registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read contracts config failed: %w", err)
	}
	schema, err := compileSchema(contractSchema)
	if err != nil {
		return nil, fmt.Errorf("compile contract schema failed: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.Reload(); err != nil {
			logger.Errorf("contract registry reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Reload re-reads the contracts file and swaps in a new snapshot.
func (r *Registry) Reload() error {
	cfg, err := readContractsFile(r.path)
	if err != nil {
		return err
	}
	contracts := make(map[string]Contract, len(cfg.Contracts))
	for instID, c := range cfg.Contracts {
		id := strings.ToUpper(strings.TrimSpace(instID))
		if id == "" {
			continue
		}
		if err := r.validate(c); err != nil {
			return fmt.Errorf("contract %s invalid: %w", id, err)
		}
		c.InstID = id
		contracts[id] = c
	}
	var def Contract
	if cfg.Default != nil {
		if err := r.validate(*cfg.Default); err != nil {
			return fmt.Errorf("default contract invalid: %w", err)
		}
		def = *cfg.Default
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:   r.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Contracts: contracts,
		Default:   def,
	}
	r.mu.Unlock()
	logger.Infof("contract registry loaded %d contracts from %s", len(contracts), r.path)
	return nil
}

// Lookup returns the contract for an instrument, falling back to the default
// entry when no specific one exists.
func (r *Registry) Lookup(instID string) (Contract, bool) {
	id := strings.ToUpper(strings.TrimSpace(instID))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.snapshot.Contracts[id]; ok {
		return c, true
	}
	if r.snapshot.Default.SizeStep > 0 || r.snapshot.Default.MinTradeQty > 0 {
		c := r.snapshot.Default
		c.InstID = id
		return c, true
	}
	return Contract{}, false
}

// Snapshot returns the current contract set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.snapshot
	out := make(map[string]Contract, len(snap.Contracts))
	for k, v := range snap.Contracts {
		out[k] = v
	}
	snap.Contracts = out
	return snap
}

func (r *Registry) validate(c Contract) error {
	if r.schema == nil {
		return nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return r.schema.Validate(doc)
}

func compileSchema(data map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readContractsFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read contracts config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse contracts config failed: %w", err)
	}
	return cfg, nil
}
