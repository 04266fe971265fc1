// Package signal ingests admission candidates dropped as JSON files into a
// watch directory. Each file is one candidate; after processing it is renamed
// with a .done or .rejected suffix so replays after a crash are harmless.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"remora/internal/ledger"
	"remora/internal/logger"
	"remora/internal/types"
)

var candidateSchema = map[string]any{
	"$schema":              "https://json-schema.org/draft/2020-12/schema",
	"type":                 "object",
	"additionalProperties": true,
	"required":             []any{"inst_id", "side", "price"},
	"properties": map[string]any{
		"uid":              map[string]any{"type": "string"},
		"inst_id":          map[string]any{"type": "string", "minLength": 1},
		"side":             map[string]any{"type": "string", "enum": []any{"long", "short"}},
		"price":            map[string]any{"type": "number", "exclusiveMinimum": 0},
		"score":            map[string]any{"type": "number"},
		"score_secondary":  map[string]any{"type": "number"},
		"score_historical": map[string]any{"type": "number"},
	},
}

type Ingestor struct {
	dir    string
	led    *ledger.Ledger
	schema *jsonschema.Schema
}

func NewIngestor(dir string, led *ledger.Ledger) (*Ingestor, error) {
	if dir == "" {
		return nil, fmt.Errorf("signal: watch directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("signal: create watch dir: %w", err)
	}
	schema, err := compileSchema(candidateSchema)
	if err != nil {
		return nil, err
	}
	return &Ingestor{dir: dir, led: led, schema: schema}, nil
}

func compileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("signal: marshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("candidate.json", strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("signal: add schema resource: %w", err)
	}
	schema, err := c.Compile("candidate.json")
	if err != nil {
		return nil, fmt.Errorf("signal: compile schema: %w", err)
	}
	return schema, nil
}

// Tick scans the drop directory once. Files are handled in name order so a
// batch drop admits deterministically.
func (g *Ingestor) Tick(ctx context.Context) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		logger.Errorf("signal: read dir %s: %v", g.dir, err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(g.dir, name)
		if err := g.ingestFile(ctx, path); err != nil {
			logger.Warnf("signal: rejected %s: %v", name, err)
			g.finish(path, ".rejected")
			continue
		}
		g.finish(path, ".done")
	}
}

func (g *Ingestor) ingestFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("not valid json")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := g.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	payload := gjson.ParseBytes(raw)
	uid := payload.Get("uid").String()
	if uid == "" {
		uid = uuid.NewString()
	}
	side, ok := types.ParseSide(payload.Get("side").String())
	if !ok {
		return fmt.Errorf("invalid side %q", payload.Get("side").String())
	}
	admittedUID, created, err := g.led.Admit(ctx, ledger.Admission{
		UID:     uid,
		InstID:  strings.ToUpper(payload.Get("inst_id").String()),
		Side:    side,
		Price:   payload.Get("price").Float(),
		Score:   payload.Get("score").Float(),
		Payload: raw,
	})
	if err != nil {
		return err
	}
	if created {
		logger.Infof("signal: admitted uid=%s %s %s", admittedUID,
			payload.Get("inst_id").String(), side)
	} else {
		logger.Debugf("signal: uid=%s already admitted, replay absorbed", admittedUID)
	}
	return nil
}

func (g *Ingestor) finish(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		logger.Errorf("signal: rename %s: %v", path, err)
	}
}
