package biomarkers

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Bounds is an optional low/high pair.
type Bounds struct {
	Low  *float64 `yaml:"low"`
	High *float64 `yaml:"high"`
}

// Entry is a canonical biomarker definition.
type Entry struct {
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Unit     string   `yaml:"unit"`
	Category string   `yaml:"category"`
	Range    Bounds   `yaml:"range"`
	Critical Bounds   `yaml:"critical"`
}

type catalogFile struct {
	Units      map[string]string `yaml:"units"`
	Biomarkers []Entry           `yaml:"biomarkers"`
}

type aliasMatcher struct {
	alias string
	entry *Entry
	re    *regexp.Regexp
}

// Catalog resolves names and units to their canonical spelling.
type Catalog struct {
	entries  []Entry
	byKey    map[string]*Entry
	units    map[string]string
	matchers []aliasMatcher
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// DefaultCatalog returns the embedded catalog. It panics if the embedded YAML is
// invalid, which only a broken build can cause.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = ParseCatalog(catalogYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("biomarkers: embedded catalog: %v", defaultErr))
	}
	return defaultCatalog
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{
		entries: file.Biomarkers,
		byKey:   map[string]*Entry{},
		units:   map[string]string{},
	}
	for k, v := range file.Units {
		c.units[unitKey(k)] = v
	}
	for i := range c.entries {
		e := &c.entries[i]
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("catalog entry %d has no name", i)
		}
		if e.Unit != "" {
			c.units[unitKey(e.Unit)] = e.Unit
		}
		names := append([]string{e.Name}, e.Aliases...)
		for _, n := range names {
			key := nameKey(n)
			if key == "" {
				continue
			}
			if prev, ok := c.byKey[key]; ok && prev != e {
				return nil, fmt.Errorf("alias %q maps to both %q and %q", n, prev.Name, e.Name)
			}
			c.byKey[key] = e
			c.matchers = append(c.matchers, aliasMatcher{
				alias: key,
				entry: e,
				re:    regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + aliasPattern(key) + `)(?:[^\p{L}\p{N}]|$)`),
			})
		}
	}
	sort.SliceStable(c.matchers, func(i, j int) bool {
		return len(c.matchers[i].alias) > len(c.matchers[j].alias)
	})
	return c, nil
}

// Lookup finds the entry for a name or any of its aliases.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.byKey[nameKey(name)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// CanonicalUnit returns the preferred spelling of unit, or unit trimmed when unknown.
func (c *Catalog) CanonicalUnit(unit string) string {
	trimmed := strings.TrimSpace(unit)
	if c == nil || trimmed == "" {
		return trimmed
	}
	if canon, ok := c.units[unitKey(trimmed)]; ok {
		return canon
	}
	return trimmed
}

// IsUnit reports whether token is a known unit spelling.
func (c *Catalog) IsUnit(token string) bool {
	if c == nil {
		return false
	}
	_, ok := c.units[unitKey(token)]
	return ok
}

// Entries returns a copy of all catalog entries in file order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// matchLine finds the longest alias present in line and returns the entry with
// the byte offset just past the alias.
func (c *Catalog) matchLine(line string) (*Entry, int, bool) {
	for _, m := range c.matchers {
		loc := m.re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		return m.entry, loc[3], true
	}
	return nil, 0, false
}

func nameKey(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, " ")
}

func unitKey(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.ReplaceAll(u, " ", "")
	u = strings.ReplaceAll(u, "μ", "µ")
	return u
}

// aliasPattern quotes alias and lets any run of whitespace match its spaces.
func aliasPattern(alias string) string {
	parts := strings.Fields(alias)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `\s+`)
}
