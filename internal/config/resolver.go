package config

import (
	"cmp"
	"slices"
	"strings"
)

// namespaceRank orders module namespaces so that foundations start before
// their consumers and, on shutdown (reverse order), outer surfaces stop
// before the stores they depend on. Unknown namespaces sort last.
var namespaceRank = map[string]int{
	"store":     10,
	"media":     20,
	"channel":   30,
	"scheduler": 40,
	"bot":       50,
	"ingest":    60,
	"gateway":   70,
	"cron":      80,
}

// Resolve returns the module IDs from the configuration in load order:
// namespace rank first, then ID. The deterministic order keeps module
// loading and shutdown reproducible across runs.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(rankOf(a), rankOf(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func rankOf(id string) int {
	ns, _, _ := strings.Cut(id, ".")
	if rank, ok := namespaceRank[ns]; ok {
		return rank
	}
	return 100
}
