package unique

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Pools holds the curated class-name pools, keyed by pool name. Each pool
// is a list of plausible class names handed out instead of generated ones.
type Pools map[string][]string

// LoadPools reads the named pools from an INI file. Each section is one
// pool; its "names" key holds a comma-separated name list:
//
//	[ecommerce]
//	names = hero-banner, cta-strip, product-grid
func LoadPools(path string) (Pools, error) {
	if path == "" {
		return Pools{}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load class pool file: %w", err)
	}

	pools := Pools{}
	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		raw := section.Key("names").String()
		var names []string
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			pools[section.Name()] = names
		}
	}

	return pools, nil
}

// Get returns the named pool, or an error when the site references a pool
// that does not exist.
func (p Pools) Get(name string) ([]string, error) {
	if name == "" {
		return nil, nil
	}
	pool, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("class pool %q not found", name)
	}
	return pool, nil
}
