package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Assets maps tradable symbols to their index weight in basis points, e.g.
// BTCUSDC: 6000. The keys define the symbol universe subscribed upstream;
// weights are informational here and validated per-basket at subscribe time.
type Assets struct {
	Symbols map[string]uint32 `yaml:"symbols"`
}

// LoadAssets loads the asset universe from the given path.
func LoadAssets(path string) (*Assets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets file: %w", err)
	}
	var assets Assets
	if err := yaml.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("failed to parse assets file: %w", err)
	}
	if len(assets.Symbols) == 0 {
		return nil, fmt.Errorf("assets file contains no symbols")
	}
	return &assets, nil
}

// SymbolList returns the symbol universe in sorted order so shard assignment
// stays stable across restarts.
func (a *Assets) SymbolList() []string {
	out := make([]string, 0, len(a.Symbols))
	for sym := range a.Symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
