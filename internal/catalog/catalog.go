// Package catalog holds the appliance kinds an order item may reference.
// The set is configurable through a YAML file so new kinds do not need a
// schema change.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Kind struct {
	Code  string `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"label"`
}

type Catalog struct {
	kinds  []Kind
	byCode map[string]Kind
}

type file struct {
	Kinds []Kind `yaml:"kinds"`
}

func Default() *Catalog {
	c, _ := New([]Kind{
		{Code: "refrigerator", Label: "Refrigerator"},
		{Code: "washing_machine", Label: "Washing machine"},
		{Code: "oven", Label: "Oven"},
		{Code: "ac", Label: "Air conditioner"},
		{Code: "tv", Label: "Television"},
		{Code: "fan", Label: "Fan"},
		{Code: "other", Label: "Other"},
	})
	return c
}

// New builds a catalog, preserving the order of kinds. Codes must be
// non-empty and unique.
func New(kinds []Kind) (*Catalog, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("catalog has no kinds")
	}
	c := &Catalog{byCode: make(map[string]Kind, len(kinds))}
	for i, k := range kinds {
		k.Code = strings.TrimSpace(k.Code)
		if k.Code == "" {
			return nil, fmt.Errorf("kind %d: code is required", i)
		}
		if _, dup := c.byCode[k.Code]; dup {
			return nil, fmt.Errorf("kind %q: duplicate code", k.Code)
		}
		if k.Label == "" {
			k.Label = k.Code
		}
		c.kinds = append(c.kinds, k)
		c.byCode[k.Code] = k
	}
	return c, nil
}

// Load reads a catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return New(f.Kinds)
}

func (c *Catalog) Valid(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

func (c *Catalog) Label(code string) string {
	if k, ok := c.byCode[code]; ok {
		return k.Label
	}
	return code
}

// Kinds returns a copy of the catalog entries in declaration order.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, len(c.kinds))
	copy(out, c.kinds)
	return out
}
