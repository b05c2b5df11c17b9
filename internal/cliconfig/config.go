// Package cliconfig backs the config and doctor CLI commands: dotted-path
// access to the config file and environment/setup diagnostics.
package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/config"
)

// Get returns the effective config value at a dotted path. Effective means
// after defaults and environment overrides, not just the file contents.
func Get(path string) (any, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	keys, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	val, ok := getAtPath(m, keys)
	if !ok {
		return nil, fmt.Errorf("path not found: %s", path)
	}
	return val, nil
}

// Set writes a value at a dotted path into the config file. The value is
// parsed as JSON when possible and stored as a plain string otherwise.
func Set(path, rawValue string) error {
	m, cfgPath, err := loadFileMap()
	if err != nil {
		return err
	}
	keys, err := parsePath(path)
	if err != nil {
		return err
	}
	setAtPath(m, keys, parseValue(rawValue))
	return saveFileMap(cfgPath, m)
}

// Unset removes a value at a dotted path from the config file. The
// effective value falls back to the default or environment override.
func Unset(path string) error {
	m, cfgPath, err := loadFileMap()
	if err != nil {
		return err
	}
	keys, err := parsePath(path)
	if err != nil {
		return err
	}
	if !unsetAtPath(m, keys) {
		return fmt.Errorf("path not found: %s", path)
	}
	return saveFileMap(cfgPath, m)
}

func loadFileMap() (map[string]any, string, error) {
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, cfgPath, nil
		}
		return nil, "", err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, cfgPath, nil
}

// saveFileMap keeps the file private: the config carries API keys.
func saveFileMap(cfgPath string, m map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cfgPath, data, 0o600)
}

func parsePath(path string) ([]string, error) {
	var keys []string
	for _, part := range strings.Split(strings.TrimSpace(path), ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keys = append(keys, part)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("path is empty")
	}
	return keys, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func getAtPath(root map[string]any, keys []string) (any, bool) {
	cur := any(root)
	for _, key := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := obj[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func setAtPath(root map[string]any, keys []string, value any) {
	cur := root
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

func unsetAtPath(root map[string]any, keys []string) bool {
	cur := root
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	last := keys[len(keys)-1]
	if _, ok := cur[last]; !ok {
		return false
	}
	delete(cur, last)
	return true
}
