package tracker

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/support-intel/internal/conversation"
)

//go:embed schemas.yaml
var defaultSchemaYAML []byte

const defaultTurnCap = 5

// Schema is the externally configurable collection config for every category.
type Schema struct {
	DefaultCategory string           `yaml:"default_category"`
	TurnCap         int              `yaml:"turn_cap"`
	UrgencyKeywords []string         `yaml:"urgency_keywords"`
	Categories      []CategorySchema `yaml:"categories"`

	urgency []matcher
	byName  map[conversation.Category]*CategorySchema
}

// CategorySchema describes what to collect for one category and where it routes.
type CategorySchema struct {
	Name          string               `yaml:"name"`
	Channel       string               `yaml:"channel"`
	Keywords      []string             `yaml:"keywords"`
	Essential     []string             `yaml:"essential"`
	Optional      []string             `yaml:"optional"`
	PriorityOrder []string             `yaml:"priority_order"`
	Questions     map[string]string    `yaml:"questions"`
	Fields        map[string]FieldRule `yaml:"fields"`

	keywords  []matcher
	essential map[string]bool
}

// FieldRule is the extraction heuristic for a single field.
type FieldRule struct {
	Patterns  []string       `yaml:"patterns"`
	Keywords  []KeywordValue `yaml:"keywords"`
	Whitelist []string       `yaml:"whitelist"`

	compiled  []*regexp.Regexp
	values    [][]matcher
	whitelist []matcher
}

// KeywordValue maps any of Match to the canonical Value.
type KeywordValue struct {
	Value string   `yaml:"value"`
	Match []string `yaml:"match"`
}

// matcher finds a literal keyword. ASCII keywords match case-insensitively on
// word boundaries; other scripts match as substrings.
type matcher struct {
	label string
	re    *regexp.Regexp
}

func newMatcher(kw string) matcher {
	kw = strings.TrimSpace(kw)
	for _, r := range kw {
		if r > unicode.MaxASCII {
			return matcher{label: kw}
		}
	}
	return matcher{label: kw, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)}
}

func (m matcher) match(text string) bool {
	if m.re != nil {
		return m.re.MatchString(text)
	}
	return strings.Contains(text, m.label)
}

func newMatchers(keywords []string) []matcher {
	out := make([]matcher, 0, len(keywords))
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		out = append(out, newMatcher(kw))
	}
	return out
}

// DefaultSchema returns the embedded schema. It panics if the embedded file is invalid.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchemaYAML)
	if err != nil {
		panic(fmt.Sprintf("tracker: embedded schema invalid: %v", err))
	}
	return s
}

// LoadSchema reads a schema from path, or returns the embedded default when path is empty.
func LoadSchema(path string) (*Schema, error) {
	if strings.TrimSpace(path) == "" {
		return ParseSchema(defaultSchemaYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// ParseSchema decodes and validates schema YAML.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}
	return &s, nil
}

// Validate checks the schema and compiles its patterns.
func (s *Schema) Validate() error {
	if len(s.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	if s.TurnCap <= 0 {
		s.TurnCap = defaultTurnCap
	}
	s.urgency = newMatchers(s.UrgencyKeywords)
	s.byName = make(map[conversation.Category]*CategorySchema, len(s.Categories))

	for i := range s.Categories {
		c := &s.Categories[i]
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))
		if c.Name == "" {
			return fmt.Errorf("category %d: name is required", i)
		}
		if _, dup := s.byName[conversation.Category(c.Name)]; dup {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		if len(c.Essential) == 0 {
			return fmt.Errorf("category %q: essential fields are required", c.Name)
		}
		if err := c.compile(); err != nil {
			return fmt.Errorf("category %q: %w", c.Name, err)
		}
		s.byName[conversation.Category(c.Name)] = c
	}

	s.DefaultCategory = strings.ToLower(strings.TrimSpace(s.DefaultCategory))
	if s.DefaultCategory == "" {
		s.DefaultCategory = s.Categories[len(s.Categories)-1].Name
	}
	if _, ok := s.byName[conversation.Category(s.DefaultCategory)]; !ok {
		return fmt.Errorf("default_category %q is not a defined category", s.DefaultCategory)
	}
	return nil
}

func (c *CategorySchema) compile() error {
	c.keywords = newMatchers(c.Keywords)
	c.essential = make(map[string]bool, len(c.Essential))
	for _, f := range c.Essential {
		c.essential[f] = true
	}

	// essential fields missing from priority_order are asked last, in declared order
	ordered := make(map[string]bool, len(c.PriorityOrder))
	for _, f := range c.PriorityOrder {
		ordered[f] = true
	}
	for _, f := range c.Essential {
		if !ordered[f] {
			c.PriorityOrder = append(c.PriorityOrder, f)
			ordered[f] = true
		}
	}

	for name, rule := range c.Fields {
		for _, p := range rule.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("field %q: pattern %q: %w", name, p, err)
			}
			rule.compiled = append(rule.compiled, re)
		}
		for _, kv := range rule.Keywords {
			if strings.TrimSpace(kv.Value) == "" {
				return fmt.Errorf("field %q: keyword value is required", name)
			}
			rule.values = append(rule.values, newMatchers(kv.Match))
		}
		rule.whitelist = newMatchers(rule.Whitelist)
		c.Fields[name] = rule
	}
	return nil
}

// Category returns the schema for name, falling back to the default category.
func (s *Schema) Category(name conversation.Category) *CategorySchema {
	if c, ok := s.byName[name]; ok {
		return c
	}
	return s.byName[conversation.Category(s.DefaultCategory)]
}

// CategoryNames returns the category names in declaration order.
func (s *Schema) CategoryNames() []conversation.Category {
	out := make([]conversation.Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		out = append(out, conversation.Category(c.Name))
	}
	return out
}

// IsEssential reports whether field must be collected before hand-off.
func (c *CategorySchema) IsEssential(field string) bool {
	return c.essential[field]
}

// extract applies the rule to text: the first pattern capture wins, then the
// first keyword value, then any whitelist hits as a list.
func (r FieldRule) extract(text string) (conversation.FieldValue, bool) {
	for _, re := range r.compiled {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := m[0]
		if len(m) > 1 {
			value = m[1]
		}
		if value = strings.TrimSpace(value); value != "" {
			return conversation.TextValue(value), true
		}
	}
	for i, matchers := range r.values {
		for _, m := range matchers {
			if m.match(text) {
				return conversation.TextValue(r.Keywords[i].Value), true
			}
		}
	}
	var hits []string
	for _, m := range r.whitelist {
		if m.match(text) {
			hits = append(hits, m.label)
		}
	}
	if len(hits) > 0 {
		return conversation.ListValue(hits...), true
	}
	return conversation.FieldValue{}, false
}
