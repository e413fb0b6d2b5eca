// Package heroes загружает список героев и их способностей.
package heroes

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownHero возвращается, если имя не совпадает ни с героем, ни с его альтернативным именем.
var ErrUnknownHero = errors.New("unknown hero")

type Ability struct {
	Name     string `yaml:"name"`
	Ultimate bool   `yaml:"ultimate"`
}

type Hero struct {
	Name      string    `yaml:"name"`
	Abilities []Ability `yaml:"abilities"`
	Alts      []string  `yaml:"alts"`
}

// Catalog ищет героев по имени и альтернативным именам без учета регистра.
type Catalog struct {
	Heroes []Hero `yaml:"heroes"`

	index map[string]int
}

// Load читает файл каталога. Подходят и YAML, и JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read heroes: %w", err)
	}
	return Parse(data)
}

// Parse разбирает каталог вида {heroes: [{name, abilities, alts}]}.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse heroes: %w", err)
	}

	c.index = make(map[string]int, len(c.Heroes))
	for i, h := range c.Heroes {
		if h.Name == "" {
			return nil, fmt.Errorf("hero %d has no name", i+1)
		}
		c.index[normalize(h.Name)] = i
	}
	// Альтернативные имена не перекрывают настоящие.
	for i, h := range c.Heroes {
		for _, alt := range h.Alts {
			if _, taken := c.index[normalize(alt)]; !taken {
				c.index[normalize(alt)] = i
			}
		}
	}
	return &c, nil
}

// Lookup ищет героя по имени или альтернативному имени.
func (c *Catalog) Lookup(name string) (*Hero, bool) {
	if c == nil {
		return nil, false
	}
	i, ok := c.index[normalize(name)]
	if !ok {
		return nil, false
	}
	return &c.Heroes[i], true
}

// Canonical возвращает имя героя в написании каталога.
// Без каталога любое имя принимается как есть.
func (c *Catalog) Canonical(name string) (string, error) {
	if c == nil {
		return name, nil
	}
	h, ok := c.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownHero, name)
	}
	return h.Name, nil
}

// Names возвращает имена героев по алфавиту.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Heroes))
	for _, h := range c.Heroes {
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names
}

// Ability ищет способность героя по имени без учета регистра.
func (h *Hero) Ability(name string) (Ability, bool) {
	for _, a := range h.Abilities {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Ability{}, false
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
