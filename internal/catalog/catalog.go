// Package catalog holds the static item and weather lookup tables. The
// tables ship embedded but can be replaced with a YAML file, because the
// upstream game adds items and reshuffles rarity without notice.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Category splits the shop into its two menus.
type Category string

const (
	CategorySeed Category = "seed"
	CategoryGear Category = "gear"
)

// Item is one catalog entry. Price is display text, not a number: the
// upstream shop mixes "$2.5m", "Free" and "TBD".
type Item struct {
	Name     string   `yaml:"name"`
	Emoji    string   `yaml:"emoji"`
	Price    string   `yaml:"price"`
	Category Category `yaml:"category"`
}

// Weather is one in-game weather kind.
type Weather struct {
	ID    string `yaml:"id"`
	Emoji string `yaml:"emoji"`
	Name  string `yaml:"name"`
}

type fileSchema struct {
	Items    []Item            `yaml:"items"`
	Watch    []string          `yaml:"watch"`
	Weather  []Weather         `yaml:"weather"`
	Synonyms map[string]string `yaml:"synonyms"`
}

// Catalog is immutable after load and safe for concurrent reads.
type Catalog struct {
	items    map[string]Item
	order    []string
	weather  map[string]Weather
	watch    []string
	synonyms map[string]string
}

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	return parse(defaultYAML)
}

// LoadFile loads a catalog from the given YAML file, or the embedded default
// when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var f fileSchema
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("catalog has no items")
	}

	c := &Catalog{
		items:    make(map[string]Item, len(f.Items)),
		order:    make([]string, 0, len(f.Items)),
		weather:  make(map[string]Weather, len(f.Weather)),
		watch:    f.Watch,
		synonyms: make(map[string]string, len(f.Synonyms)),
	}
	for _, it := range f.Items {
		if it.Category != CategorySeed && it.Category != CategoryGear {
			return nil, fmt.Errorf("item %q: unknown category %q", it.Name, it.Category)
		}
		if _, dup := c.items[it.Name]; dup {
			return nil, fmt.Errorf("duplicate item %q", it.Name)
		}
		c.items[it.Name] = it
		c.order = append(c.order, it.Name)
	}
	for _, w := range f.Weather {
		c.weather[w.ID] = w
	}
	for raw, canonical := range f.Synonyms {
		if _, ok := c.items[canonical]; !ok {
			return nil, fmt.Errorf("synonym %q points at unknown item %q", raw, canonical)
		}
		c.synonyms[normalize(raw)] = canonical
	}
	for _, name := range f.Watch {
		if _, ok := c.items[name]; !ok {
			return nil, fmt.Errorf("watch list entry %q is not in the catalog", name)
		}
	}
	return c, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Item looks up a catalog entry by exact name.
func (c *Catalog) Item(name string) (Item, bool) {
	it, ok := c.items[name]
	return it, ok
}

// Items returns the entries of one category in catalog order.
func (c *Catalog) Items(cat Category) []Item {
	var out []Item
	for _, name := range c.order {
		if it := c.items[name]; it.Category == cat {
			out = append(out, it)
		}
	}
	return out
}

// Names returns every item name in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Weather looks up a weather kind by feed id.
func (c *Catalog) Weather(id string) (Weather, bool) {
	w, ok := c.weather[id]
	return w, ok
}

// WatchList returns the rare items that trigger channel alerts.
func (c *Catalog) WatchList() []string {
	out := make([]string, len(c.watch))
	copy(out, c.watch)
	return out
}

// Resolve maps a raw feed name to a catalog name, consulting the synonym
// table first and falling back to a case-insensitive name match. The second
// return is false for names the catalog has never heard of; callers must
// treat those as parse gaps, not drop them silently.
func (c *Catalog) Resolve(raw string) (string, bool) {
	n := normalize(raw)
	if canonical, ok := c.synonyms[n]; ok {
		return canonical, true
	}
	for name := range c.items {
		if normalize(name) == n {
			return name, true
		}
	}
	return "", false
}
