package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApplySettings overlays stored settings onto the config and normalizes the
// result. Keys use the YAML names, with dots for nested fields
// ("features.window_ms"); values are YAML scalars or flow collections
// ("0.7", "[Victory, None]", "{Thumb_Up: 0.8}"). Unknown keys are ignored.
func (c *Config) ApplySettings(settings map[string]string) error {
	if len(settings) == 0 {
		return nil
	}

	doc := map[string]any{}
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var value any
		if err := yaml.Unmarshal([]byte(settings[key]), &value); err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		setPath(doc, strings.Split(key, "."), value)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	c.Normalize()
	return nil
}

// ValidateSetting reports whether a single setting decodes into the config.
func ValidateSetting(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty setting key")
	}
	return Default().ApplySettings(map[string]string{key: value})
}

func setPath(doc map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := doc[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			doc[p] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = value
}
