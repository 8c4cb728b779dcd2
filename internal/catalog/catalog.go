// Package catalog describes the review packages a track can be queued under.
package catalog

import (
	"fmt"

	"github.com/zulandar/soundcheck/internal/config"
	"github.com/zulandar/soundcheck/internal/tier"
)

// Package type names.
const (
	Starter         = "STARTER"
	Standard        = "STANDARD"
	Pro             = "PRO"
	Peer            = "PEER"
	ReleaseDecision = "RELEASE_DECISION"
)

// Package holds the scheduling rules for one package type.
type Package struct {
	Type       string
	Reviews    int       // default reviews requested; 0 means caller-chosen
	Priority   int       // lease priority, higher served first
	MinTier    tier.Tier // minimum reviewer tier, empty for any
	GenreGated bool      // candidates must share a genre unless they opted into any genre
	Peer       bool      // served by submitters through claim rather than the assigner
}

// Catalog maps package type to its rules.
type Catalog map[string]Package

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		Starter:         {Type: Starter, Reviews: 5, Priority: 0, GenreGated: true},
		Standard:        {Type: Standard, Reviews: 10, Priority: 5, GenreGated: true},
		Pro:             {Type: Pro, Reviews: 20, Priority: 10, MinTier: tier.Pro, GenreGated: true},
		ReleaseDecision: {Type: ReleaseDecision, Reviews: 10, Priority: 10, MinTier: tier.Pro, GenreGated: true},
		Peer:            {Type: Peer, Reviews: 0, Priority: 0, Peer: true},
	}
}

// FromConfig returns the default catalog with configured overrides applied.
func FromConfig(overrides map[string]config.PackageConfig) Catalog {
	c := Default()
	for name, o := range overrides {
		p, ok := c[name]
		if !ok {
			continue
		}
		if o.Reviews > 0 {
			p.Reviews = o.Reviews
		}
		if o.Priority != nil {
			p.Priority = *o.Priority
		}
		if o.MinTier != "" {
			p.MinTier = tier.Tier(o.MinTier)
		}
		if o.GenreGated != nil {
			p.GenreGated = *o.GenreGated
		}
		c[name] = p
	}
	return c
}

// Lookup returns the rules for a package type.
func (c Catalog) Lookup(pkgType string) (Package, error) {
	p, ok := c[pkgType]
	if !ok {
		return Package{}, fmt.Errorf("catalog: unknown package type %q", pkgType)
	}
	return p, nil
}
