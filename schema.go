package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// unknownSegmentType labels lines and regions that carry no type information.
const unknownSegmentType = "Not specified"

// TextRule selects transcription text. Path is the chain of element local
// names ending at the text-bearing element (innermost last); the rule matches
// when the open elements end with exactly that chain. If Attr is set the text
// is read from that attribute, otherwise from the element's character data.
type TextRule struct {
	Path []string `yaml:"path"`
	Attr string   `yaml:"attr,omitempty"`
}

// LabelSource declares elements mapping an identifier to a human label,
// like ALTO's <OtherTag ID="..." LABEL="..."/>.
type LabelSource struct {
	Element string `yaml:"element"`
	ID      string `yaml:"id"`
	Label   string `yaml:"label"`
}

// SegmentTypeRule says where a line or region keeps its type.
type SegmentTypeRule struct {
	Attr   string       `yaml:"attr,omitempty"`
	Labels *LabelSource `yaml:"labels,omitempty"` // attr holds references into these labels
	Custom bool         `yaml:"custom,omitempty"` // attr holds a PAGE "structure {type:X;}" string
}

// Schema is the lookup table for one XML layout format. Names are matched
// case-sensitively against element local names; namespaces are ignored.
type Schema struct {
	Name        string          `yaml:"-"`
	Roots       []string        `yaml:"roots"`
	Regions     []string        `yaml:"regions"`
	Lines       []string        `yaml:"lines"`
	Text        []TextRule      `yaml:"text"`
	SegmentType SegmentTypeRule `yaml:"segment_type"`

	regionSet map[string]bool
	lineSet   map[string]bool
}

// compile validates the schema and builds its lookup sets.
func (s *Schema) compile() error {
	if len(s.Lines) == 0 && len(s.Regions) == 0 && len(s.Text) == 0 {
		return fmt.Errorf("schema %q: no regions, lines or text declared", s.Name)
	}
	for i, rule := range s.Text {
		if len(rule.Path) == 0 {
			return fmt.Errorf("schema %q: text rule %d has an empty path", s.Name, i)
		}
	}
	if l := s.SegmentType.Labels; l != nil && (l.Element == "" || l.ID == "" || l.Label == "") {
		return fmt.Errorf("schema %q: segment_type.labels needs element, id and label", s.Name)
	}
	s.regionSet = make(map[string]bool, len(s.Regions))
	for _, name := range s.Regions {
		s.regionSet[name] = true
	}
	s.lineSet = make(map[string]bool, len(s.Lines))
	for _, name := range s.Lines {
		s.lineSet[name] = true
	}
	return nil
}

func (s *Schema) isRegion(local string) bool { return s.regionSet[local] }
func (s *Schema) isLine(local string) bool   { return s.lineSet[local] }

// textRule returns the rule matching the open element stack, if any.
func (s *Schema) textRule(stack []string) (TextRule, bool) {
	for _, rule := range s.Text {
		if hasSuffix(stack, rule.Path) {
			return rule, true
		}
	}
	return TextRule{}, false
}

func hasSuffix(stack, path []string) bool {
	if len(path) > len(stack) {
		return false
	}
	off := len(stack) - len(path)
	for i, name := range path {
		if stack[off+i] != name {
			return false
		}
	}
	return true
}

var pageStructureType = regexp.MustCompile(`structure\s*\{[^}]*?type:\s*([^;}]+)`)

// segmentType resolves the type label of a line or region. labels holds the
// identifier → label table collected from the document.
func (s *Schema) segmentType(attrs map[string]string, labels map[string]string) string {
	rule := s.SegmentType
	if rule.Attr == "" {
		return unknownSegmentType
	}
	value, ok := attrs[rule.Attr]
	if !ok || strings.TrimSpace(value) == "" {
		return unknownSegmentType
	}
	switch {
	case rule.Labels != nil:
		for _, ref := range strings.Fields(value) {
			if label, ok := labels[ref]; ok {
				return label
			}
		}
		return unknownSegmentType
	case rule.Custom:
		if m := pageStructureType.FindStringSubmatch(value); m != nil {
			if t := strings.TrimSpace(m[1]); t != "" {
				return t
			}
		}
		return unknownSegmentType
	}
	return strings.TrimSpace(value)
}

func builtinSchemaDefs() map[string]*Schema {
	return map[string]*Schema{
		"alto": {
			Roots:   []string{"alto"},
			Regions: []string{"TextBlock"},
			Lines:   []string{"TextLine"},
			Text:    []TextRule{{Path: []string{"TextLine", "String"}, Attr: "CONTENT"}},
			SegmentType: SegmentTypeRule{
				Attr:   "TAGREFS",
				Labels: &LabelSource{Element: "OtherTag", ID: "ID", Label: "LABEL"},
			},
		},
		"page": {
			Roots:       []string{"PcGts"},
			Regions:     []string{"TextRegion"},
			Lines:       []string{"TextLine"},
			Text:        []TextRule{{Path: []string{"TextLine", "TextEquiv", "Unicode"}}},
			SegmentType: SegmentTypeRule{Attr: "custom", Custom: true},
		},
	}
}

// SchemaSet holds every known schema and the root-element lookup used by
// format auto-detection.
type SchemaSet struct {
	schemas map[string]*Schema
	rootMap map[string]*Schema // document element local name → schema
}

// newSchemaSet compiles the built-in schemas, then the extra ones, which
// replace built-ins of the same name.
func newSchemaSet(extra map[string]*Schema) (*SchemaSet, error) {
	defs := builtinSchemaDefs()
	for name, s := range extra {
		defs[strings.ToLower(name)] = s
	}
	set := &SchemaSet{
		schemas: make(map[string]*Schema, len(defs)),
		rootMap: make(map[string]*Schema),
	}
	for _, name := range sortedKeys(defs) {
		s := defs[name]
		s.Name = name
		if err := s.compile(); err != nil {
			return nil, err
		}
		set.schemas[name] = s
		for _, root := range s.Roots {
			if other, taken := set.rootMap[root]; taken {
				return nil, fmt.Errorf("schemas %q and %q both claim root element %q", other.Name, name, root)
			}
			set.rootMap[root] = s
		}
	}
	return set, nil
}

// Lookup returns the schema with the given name.
func (ss *SchemaSet) Lookup(name string) (*Schema, bool) {
	s, ok := ss.schemas[strings.ToLower(name)]
	return s, ok
}

// ForRoot returns the schema whose root element has the given local name.
func (ss *SchemaSet) ForRoot(local string) (*Schema, bool) {
	s, ok := ss.rootMap[local]
	return s, ok
}

// Names lists the known schema names, sorted.
func (ss *SchemaSet) Names() []string {
	return sortedKeys(ss.schemas)
}

// findSchemaFile looks for schemas.yml in the usual config locations.
func findSchemaFile() string {
	var dirs []string
	dirs = append(dirs, ".")
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "htrmeta"))
	}
	for _, d := range dirs {
		p := filepath.Join(d, "schemas.yml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadSchemaFile parses a YAML file mapping schema names to definitions.
func loadSchemaFile(path string) (map[string]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading schema file %s: %w", path, err)
	}
	var defs map[string]*Schema
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("error parsing schema file %s: %w", path, err)
	}
	for name, s := range defs {
		if s == nil {
			return nil, fmt.Errorf("schema file %s: schema %q is empty", path, name)
		}
	}
	return defs, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
