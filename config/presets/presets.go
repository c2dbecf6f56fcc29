// Package presets holds named configurations that replace the defaults
// before the config file and flags are applied.
package presets

import (
	"fmt"
	"sort"

	"github.com/btcl2/l2node/config"
)

var presets = map[string]config.Config{}

func register(name string, preset config.Config) {
	if _, exists := presets[name]; exists {
		panic(fmt.Sprintf("preset with name %s already exists", name))
	}
	presets[name] = preset
}

// Options returns the registered preset names.
func Options() []string {
	rst := make([]string, 0, len(presets))
	for name := range presets {
		rst = append(rst, name)
	}
	sort.Strings(rst)
	return rst
}

// Get returns the preset registered under name.
func Get(name string) (config.Config, error) {
	if preset, exists := presets[name]; exists {
		return preset, nil
	}
	return config.Config{}, fmt.Errorf("preset %s is not registered. select one of %v", name, Options())
}
