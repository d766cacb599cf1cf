// Package rulepack loads bundles of rule definitions from YAML or JSON files.
package rulepack

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/secureops/workbench/respond/internal/models"
)

//go:embed packs/*.yaml
var builtin embed.FS

// Pack is a named bundle of rules.
type Pack struct {
	Name   string                     `yaml:"name" json:"name"`
	Rules  []models.CreateRuleRequest `yaml:"rules" json:"rules"`
	Origin string                     `yaml:"-" json:"-"`
}

// Parse decodes a pack. The format is chosen from the file extension; YAML is
// the default. Unknown fields are rejected.
func Parse(name string, data []byte) (*Pack, error) {
	var p Pack
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rules in %s: %w", name, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rules in %s: %w", name, err)
		}
	}

	for i, r := range p.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%s: rule %d missing name", name, i+1)
		}
		if strings.TrimSpace(r.MatchField) == "" {
			return nil, fmt.Errorf("%s: rule %q missing match_field", name, r.Name)
		}
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(path.Base(filepath.ToSlash(name)), path.Ext(name))
	}
	p.Origin = name
	return &p, nil
}

// LoadFile reads one pack from disk.
func LoadFile(filename string) (*Pack, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(filename, data)
}

// Load reads a file, or every .yaml, .yml and .json file in a directory in
// lexical order.
func Load(target string) ([]*Pack, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	if !info.IsDir() {
		p, err := LoadFile(target)
		if err != nil {
			return nil, err
		}
		return []*Pack{p}, nil
	}
	return loadFS(os.DirFS(target), ".", target)
}

// Builtin returns the packs shipped with the binary.
func Builtin() ([]*Pack, error) {
	return loadFS(builtin, "packs", "builtin")
}

func loadFS(fsys fs.FS, dir, label string) ([]*Pack, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", label, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	packs := make([]*Pack, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		p, err := Parse(path.Join(label, name), data)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, nil
}

// Rules flattens packs into one list in pack order.
func Rules(packs []*Pack) []models.CreateRuleRequest {
	var out []models.CreateRuleRequest
	for _, p := range packs {
		out = append(out, p.Rules...)
	}
	return out
}
