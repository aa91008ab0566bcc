package reward

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the read-only set of redeemable rewards, keyed by id and
// preserving file order for listing.
type Catalog struct {
	rewards []Reward
	byID    map[string]Reward
}

// NewCatalog validates and indexes a reward list.
func NewCatalog(rewards []Reward) (*Catalog, error) {
	if len(rewards) == 0 {
		return nil, fmt.Errorf("%w: no rewards", ErrInvalidCatalog)
	}

	byID := make(map[string]Reward, len(rewards))
	for _, r := range rewards {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: reward with empty id", ErrInvalidCatalog)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate reward id %q", ErrInvalidCatalog, r.ID)
		}
		if r.PointsCost <= 0 {
			return nil, fmt.Errorf("%w: reward %q has non-positive cost", ErrInvalidCatalog, r.ID)
		}
		if !r.DiscountKind.Valid() {
			return nil, fmt.Errorf("%w: reward %q has unknown discount kind %q", ErrInvalidCatalog, r.ID, r.DiscountKind)
		}
		if r.DiscountAmount <= 0 {
			return nil, fmt.Errorf("%w: reward %q has non-positive discount", ErrInvalidCatalog, r.ID)
		}
		byID[r.ID] = r
	}

	return &Catalog{rewards: rewards, byID: byID}, nil
}

type catalogFile struct {
	Rewards []Reward `yaml:"rewards"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidCatalog, path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidCatalog, path, err)
	}

	return NewCatalog(f.Rewards)
}

// DefaultCatalog returns the built-in reward list used when no catalog file
// is configured.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Reward{
		{ID: "save-50", Name: "₹50 off your order", PointsCost: 200, DiscountKind: DiscountFlat, DiscountAmount: 50},
		{ID: "save-100", Name: "₹100 off your order", PointsCost: 400, DiscountKind: DiscountFlat, DiscountAmount: 100},
		{ID: "pct-10", Name: "10% off your order", PointsCost: 500, DiscountKind: DiscountPercentage, DiscountAmount: 10},
		{ID: "pct-20", Name: "20% off your order", PointsCost: 900, DiscountKind: DiscountPercentage, DiscountAmount: 20},
	})
	if err != nil {
		panic(err) // built-in list is static; cannot fail
	}
	return c
}

// Get looks up a reward by id.
func (c *Catalog) Get(id string) (Reward, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// List returns the rewards in catalog order.
func (c *Catalog) List() []Reward {
	out := make([]Reward, len(c.rewards))
	copy(out, c.rewards)
	return out
}
