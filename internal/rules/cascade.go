package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Cascade applies rule sets in fixed priority: category_raw, then type, then
// name. The first rule that fires wins.
type Cascade struct {
	CategoryRaw *Rule
	Type        *Rule
	Name        *Rule
}

// Apply returns the first firing result, or NoMatch.
func (c Cascade) Apply(categoryRaw, typ, name string) Result {
	if res := c.CategoryRaw.Apply(categoryRaw); res.Fired() {
		return res
	}
	if res := c.Type.Apply(typ); res.Fired() {
		return res
	}
	return c.Name.Apply(name)
}

// ApplyDomainRules runs the built-in cascade and returns the override
// category. fired is false when no rule matched; a fired rule with a nil id
// maps the row to no category.
func ApplyDomainRules(categoryRaw, typ, name string) (id *int, fired bool) {
	res := defaultCascade.Apply(categoryRaw, typ, name)
	return res.Ptr(), res.Fired()
}

type fileEntry struct {
	Key      string `yaml:"key"`
	Category *int   `yaml:"category"`
}

type fileRule struct {
	Operator string      `yaml:"operator"`
	Rules    []fileEntry `yaml:"rules"`
}

type cascadeFile struct {
	CategoryRaw *fileRule `yaml:"category_raw"`
	Type        *fileRule `yaml:"type"`
	Name        *fileRule `yaml:"name"`
}

// LoadCascade reads a YAML rule file. Sections omitted from the file keep the
// built-in tables.
func LoadCascade(path string) (Cascade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Cascade{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseCascade(data)
}

// ParseCascade decodes a YAML rule document.
func ParseCascade(data []byte) (Cascade, error) {
	var doc cascadeFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Cascade{}, fmt.Errorf("%w: decode rules: %v", ErrRuleConfiguration, err)
	}

	out := DefaultCascade()
	var err error
	if out.CategoryRaw, err = buildFileRule("category_raw", doc.CategoryRaw, out.CategoryRaw); err != nil {
		return Cascade{}, err
	}
	if out.Type, err = buildFileRule("type", doc.Type, out.Type); err != nil {
		return Cascade{}, err
	}
	if out.Name, err = buildFileRule("name", doc.Name, out.Name); err != nil {
		return Cascade{}, err
	}
	return out, nil
}

func buildFileRule(name string, fr *fileRule, fallback *Rule) (*Rule, error) {
	if fr == nil {
		return fallback, nil
	}
	entries := make([]Entry, 0, len(fr.Rules))
	for _, e := range fr.Rules {
		target := Null
		if e.Category != nil {
			target = Category(*e.Category)
		}
		entries = append(entries, Entry{Key: e.Key, Target: target})
	}
	return New(name, fr.Operator, entries)
}
