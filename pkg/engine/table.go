package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

var (
	// ErrNoEngines is returned for a table without any [[engine]] entries.
	ErrNoEngines = errors.New("engine table declares no engines")

	// ErrInvalidEngine is returned for an entry with a missing or duplicate id.
	ErrInvalidEngine = errors.New("invalid engine")
)

// Table is the on-disk engine declaration:
//
//	[[engine]]
//	id = "sentinel"
//	name = "Sentinel"
//	keywords = ["detect", "anomaly"]
type Table struct {
	Engines []Engine `toml:"engine"`
}

// DefaultTable returns the built-in engines, one per lifecycle phase.
func DefaultTable() Table {
	return Table{Engines: []Engine{
		{ID: "sentinel", Name: "Sentinel", Keywords: []string{"detect", "anomaly", "spike", "alert"}},
		{ID: "strategist", Name: "Strategist", Keywords: []string{"decide", "plan", "recommend", "strategy"}},
		{ID: "executor", Name: "Executor", Keywords: []string{"execute", "apply", "update", "publish", "price"}},
		{ID: "auditor", Name: "Auditor", Keywords: []string{"prove", "verify", "audit", "confirm"}},
		{ID: "learner", Name: "Learner", Keywords: []string{"learn", "model", "feedback", "train"}},
	}}
}

// LoadTable reads and validates a TOML engine table.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("reading engine table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates TOML engine table data.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := toml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parsing engine table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate checks that the table declares at least one engine and that
// every id is present and unique.
func (t Table) Validate() error {
	if len(t.Engines) == 0 {
		return ErrNoEngines
	}

	seen := make(map[string]struct{}, len(t.Engines))
	for i, e := range t.Engines {
		if e.ID == "" {
			return fmt.Errorf("%w: entry %d has no id", ErrInvalidEngine, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidEngine, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Resolve loads the table at path, or returns DefaultTable when path is
// empty.
func Resolve(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	return LoadTable(path)
}
