// Package application wires the evaluation pipeline: bar fetch,
// indicator computation, rule evaluation and sector refresh.
package application

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MemberDef is one instrument in the monitored universe.
type MemberDef struct {
	Symbol string  `yaml:"symbol"`
	Weight float64 `yaml:"weight"`
	ASM    bool    `yaml:"asm"`
}

// SectorDef groups members under one sector id.
type SectorDef struct {
	ID      string      `yaml:"id"`
	Name    string      `yaml:"name"`
	Members []MemberDef `yaml:"members"`
}

// Universe is the full instrument/sector layout the pipeline watches.
type Universe struct {
	Sectors []SectorDef `yaml:"sectors"`
}

// LoadUniverse reads the sector layout from YAML.
func LoadUniverse(path string) (*Universe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe %s: %w", path, err)
	}
	var u Universe
	if err := yaml.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("parse universe %s: %w", path, err)
	}
	for _, s := range u.Sectors {
		if s.ID == "" {
			return nil, fmt.Errorf("universe %s: sector with empty id", path)
		}
		if len(s.Members) == 0 {
			return nil, fmt.Errorf("universe %s: sector %s has no members", path, s.ID)
		}
	}
	return &u, nil
}

// IsASM reports whether a symbol carries the surveillance flag.
func (u *Universe) IsASM(symbol string) bool {
	for _, s := range u.Sectors {
		for _, m := range s.Members {
			if m.Symbol == symbol && m.ASM {
				return true
			}
		}
	}
	return false
}
