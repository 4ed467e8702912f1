/*
Package config provides typed configuration lookups over map[string]any.

Keys may be dotted paths that walk nested maps, so a scheduler can read
"history.driver" straight from a file like:

	workers: 16
	await_timeout: 5s
	history:
	  driver: sqlite
	  path: runs.db

Accessors never fail. They return the supplied default when a key is
missing or holds a value of the wrong type:

	cfg := config.New(map[string]any{"workers": 8, "await_timeout": "3s"})
	cfg.Int("workers", 24)                     // 8
	cfg.Duration("await_timeout", time.Second) // 3s
	cfg.String("history.driver", "memory")     // "memory"

# Loading

FromFile picks a decoder by extension (.yaml, .yml, .json, .hcl). FromFiles
loads several files and merges them so later files override earlier ones:

	cfg, err := config.FromFiles("defaults.yaml", "local.hcl")

Merge does the same for Configs already in memory.

Config is safe for concurrent reads. Do not modify the map passed to New.
*/
package config
