// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lilliput

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var catalogTOML []byte

// Catalog is the static command tree of a monitor model:
// command -> positional fields -> enumerable item names.
type Catalog struct {
	Model    string    `toml:"model"`
	Commands []Command `toml:"command"`
}

// Command is one entry of the catalog. Values is nil for commands that take no
// arguments.
type Command struct {
	Name        string  `toml:"name"`
	Description string  `toml:"description"`
	Values      []Field `toml:"value"`
}

// Field is one positional argument of a command.
type Field struct {
	Name  string `toml:"name"`
	Items []Item `toml:"item"`
}

// Item is one enumerable value of a field.
type Item struct {
	Name string `toml:"name"`
}

// ItemNames returns the field's item names in catalog order
func (f Field) ItemNames() []string {
	names := make([]string, 0, len(f.Items))
	for _, item := range f.Items {
		names = append(names, item.Name)
	}
	return names
}

// Lookup finds a command by name
func (c *Catalog) Lookup(name string) (*Command, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Commands {
		if c.Commands[i].Name == name {
			return &c.Commands[i], true
		}
	}
	return nil, false
}

// ParseCatalog decodes a catalog from TOML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if _, err := toml.Decode(string(data), &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for i, cmd := range c.Commands {
		if cmd.Name == "" {
			return nil, fmt.Errorf("catalog command %d has no name", i)
		}
	}
	return &c, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded catalog. The embedded file is validated by
// the package tests, so a parse failure here is a build defect.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(catalogTOML)
		if err != nil {
			panic(fmt.Sprintf("lilliput: embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
