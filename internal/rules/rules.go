// Package rules loads declarative integrity rule files. A rule file is a
// YAML document declaring relations, required-field constraints, duplicate
// and staleness scans, so the CLI can check a store without any Go code.
package rules

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lattice-go/lattice/integrity"
)

// File is the parsed form of a rule file.
type File struct {
	IDField       string          `yaml:"id_field"`
	DetectOrphans bool            `yaml:"detect_orphans"`
	FailFast      bool            `yaml:"fail_fast"`
	Relations     []RelationDecl  `yaml:"relations"`
	Required      []RequiredDecl  `yaml:"required_fields"`
	Duplicates    []DuplicateDecl `yaml:"duplicates"`
	Stale         []StaleDecl     `yaml:"stale"`
}

// RelationDecl declares one referential rule.
type RelationDecl struct {
	From     string `yaml:"from"`
	Field    string `yaml:"field"`
	To       string `yaml:"to"`
	Required bool   `yaml:"required"`
	IsArray  bool   `yaml:"is_array"`
	OnDelete string `yaml:"on_delete"`
}

// RequiredDecl declares fields every entity of a type must carry.
type RequiredDecl struct {
	Entity string   `yaml:"entity"`
	Fields []string `yaml:"fields"`
}

// DuplicateDecl declares a duplicate scan over a field tuple.
type DuplicateDecl struct {
	Entity string   `yaml:"entity"`
	Fields []string `yaml:"fields"`
}

// StaleDecl declares a staleness scan over a timestamp field.
type StaleDecl struct {
	Entity string   `yaml:"entity"`
	Field  string   `yaml:"field"`
	MaxAge Duration `yaml:"max_age"`
}

// Duration decodes Go duration strings ("24h", "90s") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and validates a rule file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a rule document and validates its declarations.
func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	for i, rel := range f.Relations {
		if rel.From == "" || rel.Field == "" || rel.To == "" {
			return fmt.Errorf("relations[%d]: from, field and to are all required", i)
		}
		switch integrity.OnDelete(rel.OnDelete) {
		case "", integrity.OnDeleteCascade, integrity.OnDeleteSetNull,
			integrity.OnDeleteRestrict, integrity.OnDeleteNoAction:
		default:
			return fmt.Errorf("relations[%d]: unknown on_delete %q", i, rel.OnDelete)
		}
	}
	for i, req := range f.Required {
		if req.Entity == "" || len(req.Fields) == 0 {
			return fmt.Errorf("required_fields[%d]: entity and fields are required", i)
		}
	}
	for i, dup := range f.Duplicates {
		if dup.Entity == "" || len(dup.Fields) == 0 {
			return fmt.Errorf("duplicates[%d]: entity and fields are required", i)
		}
	}
	for i, st := range f.Stale {
		if st.Entity == "" || st.Field == "" || st.MaxAge <= 0 {
			return fmt.Errorf("stale[%d]: entity, field and a positive max_age are required", i)
		}
	}
	return nil
}

// CheckerConfig builds the integrity configuration the file declares.
func (f *File) CheckerConfig(logger *slog.Logger) integrity.Config {
	cfg := integrity.Config{
		IDField:       f.IDField,
		DetectOrphans: f.DetectOrphans,
		FailFast:      f.FailFast,
		Logger:        logger,
	}
	for _, rel := range f.Relations {
		cfg.Relations = append(cfg.Relations, integrity.Relation{
			From:     rel.From,
			Field:    rel.Field,
			To:       rel.To,
			Required: rel.Required,
			IsArray:  rel.IsArray,
			OnDelete: integrity.OnDelete(rel.OnDelete),
		})
	}
	for _, req := range f.Required {
		cfg.AnomalyRules = append(cfg.AnomalyRules, integrity.RequiredFieldsRule(req.Entity, req.Fields...))
	}
	for _, dup := range f.Duplicates {
		cfg.AnomalyRules = append(cfg.AnomalyRules, integrity.DuplicateRule(dup.Entity, dup.Fields...))
	}
	for _, st := range f.Stale {
		cfg.AnomalyRules = append(cfg.AnomalyRules, integrity.StaleRule(st.Entity, st.Field, time.Duration(st.MaxAge)))
	}
	return cfg
}
