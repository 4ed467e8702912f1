package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/dagflow/internal/xjson"
)

// FromFile loads configuration from a file, picking the format by extension.
// Supported extensions: .yaml, .yml, .json, .hcl
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	case ".hcl":
		return FromHCL(filepath.Base(path), data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromFiles loads every path and merges them in order.
func FromFiles(paths ...string) (Config, error) {
	layers := make([]Config, 0, len(paths))
	for _, p := range paths {
		cfg, err := FromFile(p)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", p, err)
		}
		layers = append(layers, cfg)
	}
	return Merge(layers...)
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := xjson.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// Merge combines layers into one Config. Later layers override earlier ones;
// nested maps are merged key by key. Inputs are not modified.
func Merge(layers ...Config) (Config, error) {
	merged := make(map[string]any)
	for i, layer := range layers {
		if err := mergo.Merge(&merged, deepCopy(layer.data), mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("merge layer %d: %w", i, err)
		}
	}
	return New(merged), nil
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopy(nested)
			continue
		}
		out[k] = v
	}
	return out
}
