// Package badges holds the badge rule catalogue.
package badges

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/playperu/stampquest/internal/stampquest"
)

// Defaults is the built-in catalogue, evaluated in this order.
func Defaults() []stampquest.BadgeRule {
	return []stampquest.BadgeRule{
		{BadgeID: "first_steps", Name: "First Steps", Description: "Complete your first quest", RequiredCategory: stampquest.AnyCategory, RequiredCount: 1},
		{BadgeID: "explorer", Name: "Explorer", Description: "Visit 5 different locations", RequiredCategory: stampquest.AnyCategory, RequiredCount: 5},
		{BadgeID: "coffee_lover", Name: "Coffee Lover", Description: "Visit 3 cafes", RequiredCategory: "cafe", RequiredCount: 3},
		{BadgeID: "nature_enthusiast", Name: "Nature Enthusiast", Description: "Visit 5 parks", RequiredCategory: "park", RequiredCount: 5},
		{BadgeID: "city_guide", Name: "City Guide", Description: "Visit 10 landmarks", RequiredCategory: "landmark", RequiredCount: 10},
		{BadgeID: "master_explorer", Name: "Master Explorer", Description: "Complete 20 quests", RequiredCategory: stampquest.AnyCategory, RequiredCount: 20},
	}
}

type file struct {
	Badges []stampquest.BadgeRule `yaml:"badges"`
}

// Load reads rules from a YAML file. An empty path yields Defaults.
//
//	badges:
//	  - id: coffee_lover
//	    name: Coffee Lover
//	    category: cafe
//	    count: 3
func Load(path string) ([]stampquest.BadgeRule, error) {
	if path == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading badge rules: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML rule document.
func Parse(raw []byte) ([]stampquest.BadgeRule, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("badge rules: %w", err)
	}
	if len(f.Badges) == 0 {
		return nil, fmt.Errorf("badge rules: no badges defined")
	}

	seen := make(map[string]bool, len(f.Badges))
	for i := range f.Badges {
		r := &f.Badges[i]
		r.BadgeID = strings.TrimSpace(r.BadgeID)
		r.RequiredCategory = strings.TrimSpace(r.RequiredCategory)
		if r.BadgeID == "" {
			return nil, fmt.Errorf("badge rules: entry %d has no id", i+1)
		}
		if seen[r.BadgeID] {
			return nil, fmt.Errorf("badge rules: duplicate id %q", r.BadgeID)
		}
		seen[r.BadgeID] = true
		if r.RequiredCategory == "" {
			r.RequiredCategory = stampquest.AnyCategory
		}
		if r.RequiredCount < 1 {
			return nil, fmt.Errorf("badge rules: %q needs count >= 1", r.BadgeID)
		}
		if r.Name == "" {
			r.Name = r.BadgeID
		}
	}
	return f.Badges, nil
}
