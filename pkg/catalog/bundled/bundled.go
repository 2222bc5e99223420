// Package bundled ships pre-bundled character lists for categories the remote
// collection covers poorly. When a bundled list exists for a category the
// sampling engine uses it instead of querying the network.
//
// Lists are YAML documents of the form:
//
//	category: Cars
//	characters:
//	  - id: 9001
//	    name: Lightning McQueen
//	    image_url: https://...
//	    films: [Cars, Cars 2]
//
// The built-in lists are embedded at compile time; operators can add or
// replace categories with extra files via [Load].
package bundled

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

//go:embed data/*.yaml
var builtin embed.FS

// list is the on-disk shape of one bundled category.
type list struct {
	Category   string              `yaml:"category"`
	Characters []catalog.Character `yaml:"characters"`
}

// Overrides maps category names to pre-bundled character lists. It is
// immutable after construction and safe for concurrent use.
type Overrides struct {
	byCategory map[string][]catalog.Character
}

var (
	defaultOverrides *Overrides
	defaultOnce      sync.Once
)

// Default returns the embedded overrides. It panics if the embedded data is
// malformed, which is a build defect.
func Default() *Overrides {
	defaultOnce.Do(func() {
		o, err := loadBuiltin()
		if err != nil {
			panic("bundled: embedded data: " + err.Error())
		}
		defaultOverrides = o
	})
	return defaultOverrides
}

// Lookup returns a copy of the embedded list for category.
func Lookup(category string) ([]catalog.Character, bool) {
	return Default().Lookup(category)
}

// Categories returns the embedded category names in sorted order.
func Categories() []string {
	return Default().Categories()
}

// Load returns the embedded overrides extended with the lists in paths.
// A file naming an existing category replaces that category's list.
func Load(paths ...string) (*Overrides, error) {
	o, err := loadBuiltin()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("bundled: open %q: %w", p, err)
		}
		l, err := decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("bundled: %q: %w", p, err)
		}
		o.byCategory[l.Category] = l.Characters
	}
	return o, nil
}

// New builds overrides from an in-memory map. The slices are copied.
func New(m map[string][]catalog.Character) *Overrides {
	o := &Overrides{byCategory: make(map[string][]catalog.Character, len(m))}
	for k, v := range m {
		o.byCategory[k] = slices.Clone(v)
	}
	return o
}

// Lookup returns a copy of the list for category. The match is exact.
func (o *Overrides) Lookup(category string) ([]catalog.Character, bool) {
	if o == nil {
		return nil, false
	}
	cs, ok := o.byCategory[category]
	if !ok {
		return nil, false
	}
	return slices.Clone(cs), true
}

// Categories returns the category names in sorted order.
func (o *Overrides) Categories() []string {
	if o == nil {
		return nil
	}
	names := make([]string, 0, len(o.byCategory))
	for k := range o.byCategory {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func loadBuiltin() (*Overrides, error) {
	entries, err := builtin.ReadDir("data")
	if err != nil {
		return nil, err
	}
	o := &Overrides{byCategory: make(map[string][]catalog.Character, len(entries))}
	for _, e := range entries {
		b, err := builtin.ReadFile(path.Join("data", e.Name()))
		if err != nil {
			return nil, err
		}
		l, err := decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		o.byCategory[l.Category] = l.Characters
	}
	return o, nil
}

func decode(r io.Reader) (list, error) {
	var l list
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return l, errors.New("empty document")
		}
		return l, fmt.Errorf("decode: %w", err)
	}
	if l.Category == "" {
		return l, errors.New("category must not be empty")
	}
	if len(l.Characters) == 0 {
		return l, fmt.Errorf("category %q has no characters", l.Category)
	}
	seen := make(map[int]bool, len(l.Characters))
	for i, c := range l.Characters {
		if c.Name == "" {
			return l, fmt.Errorf("characters[%d]: name must not be empty", i)
		}
		if seen[c.ID] {
			return l, fmt.Errorf("characters[%d]: duplicate id %d", i, c.ID)
		}
		seen[c.ID] = true
	}
	return l, nil
}
