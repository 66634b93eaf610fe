package site

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/torscout/horosafe"
)

// Factory builds an adapter from its configuration.
type Factory func(cfg Config, logger *slog.Logger) (Adapter, error)

var factories = map[string]Factory{
	"piratebay": func(cfg Config, _ *slog.Logger) (Adapter, error) { return NewPirateBay(cfg) },
	"nyaa":      func(cfg Config, logger *slog.Logger) (Adapter, error) { return NewNyaa(cfg, logger) },
}

// Kinds returns the adapter kinds Build understands.
func Kinds() []string {
	return []string{"nyaa", "piratebay"}
}

// Build instantiates every enabled site in order. Ids must be unique.
func Build(cfgs []Config, logger *slog.Logger) ([]Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool, len(cfgs))
	var out []Adapter
	for _, c := range cfgs {
		if err := horosafe.ValidateIdentifier(c.ID); err != nil {
			return nil, fmt.Errorf("site: entry with kind %q: %w", c.Kind, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("site: duplicate id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Disabled {
			logger.Info("site: disabled", "site", c.ID)
			continue
		}
		if err := horosafe.CheckBaseURL(c.BaseURL); err != nil {
			return nil, fmt.Errorf("site %s: %w", c.ID, err)
		}
		f, ok := factories[c.Kind]
		if !ok {
			return nil, fmt.Errorf("site %s: unknown kind %q (want one of %v)", c.ID, c.Kind, Kinds())
		}
		a, err := f(c, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
