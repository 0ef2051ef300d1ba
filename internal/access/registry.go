// Package access holds the access-tier registry and the authorization policy
// for user operations.
//
// The registry is loaded once at startup and never mutated afterwards, so it
// is safe to share between goroutines without locking.
package access

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sakif/issuedesk/internal/model"
)

// Well-known tier ids. They match the numbering bug trackers have used for
// years, which keeps exported data and API clients compatible.
const (
	Viewer        = 10
	Reporter      = 25
	Updater       = 40
	Developer     = 55
	Manager       = 70
	Administrator = 90
)

// Tier is one access level. Higher IDs carry more privilege.
type Tier struct {
	ID    int    `koanf:"id"    validate:"gt=0"`
	Name  string `koanf:"name"  validate:"required"`
	Label string `koanf:"label"`
}

// AsModel converts the tier into its wire form.
func (t Tier) AsModel() model.AccessLevel {
	return model.AccessLevel{ID: t.ID, Name: t.Name, Label: t.Label}
}

// DefaultTiers returns the stock tier set. Labels equal names.
func DefaultTiers() []Tier {
	return []Tier{
		{ID: Viewer, Name: "viewer", Label: "viewer"},
		{ID: Reporter, Name: "reporter", Label: "reporter"},
		{ID: Updater, Name: "updater", Label: "updater"},
		{ID: Developer, Name: "developer", Label: "developer"},
		{ID: Manager, Name: "manager", Label: "manager"},
		{ID: Administrator, Name: "administrator", Label: "administrator"},
	}
}

// Registry is a read-only lookup of tiers by id and by name.
type Registry struct {
	tiers  []Tier // sorted by ID
	byID   map[int]Tier
	byName map[string]Tier
	def    Tier
}

// NewRegistry builds a registry. defaultName names the tier given to new
// users that do not ask for one; it must be part of tiers.
func NewRegistry(tiers []Tier, defaultName string) (*Registry, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("access: at least one tier is required")
	}

	r := &Registry{
		tiers:  make([]Tier, 0, len(tiers)),
		byID:   make(map[int]Tier, len(tiers)),
		byName: make(map[string]Tier, len(tiers)),
	}
	for _, t := range tiers {
		if t.ID <= 0 {
			return nil, fmt.Errorf("access: tier %q has non-positive id %d", t.Name, t.ID)
		}
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if key == "" {
			return nil, fmt.Errorf("access: tier %d has no name", t.ID)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("access: duplicate tier id %d", t.ID)
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("access: duplicate tier name %q", t.Name)
		}
		if t.Label == "" {
			t.Label = t.Name
		}
		r.byID[t.ID] = t
		r.byName[key] = t
		r.tiers = append(r.tiers, t)
	}
	sort.Slice(r.tiers, func(i, j int) bool { return r.tiers[i].ID < r.tiers[j].ID })

	def, ok := r.ByName(defaultName)
	if !ok {
		return nil, fmt.Errorf("access: default tier %q is not registered", defaultName)
	}
	r.def = def

	return r, nil
}

// Default is the tier assigned when a create request names none.
func (r *Registry) Default() Tier {
	return r.def
}

func (r *Registry) ByID(id int) (Tier, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// ByName looks a tier up case-insensitively.
func (r *Registry) ByName(name string) (Tier, bool) {
	t, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Resolve finds the tier a create request refers to.
func (r *Registry) Resolve(ref model.AccessLevelRef) (Tier, bool) {
	if ref.ID != 0 {
		return r.ByID(ref.ID)
	}
	return r.ByName(ref.Name)
}

// Describe renders a stored tier id. Ids that are no longer registered come
// back as "@<id>@" so the record still renders instead of failing.
func (r *Registry) Describe(id int) model.AccessLevel {
	if t, ok := r.byID[id]; ok {
		return t.AsModel()
	}
	unknown := "@" + strconv.Itoa(id) + "@"
	return model.AccessLevel{ID: id, Name: unknown, Label: unknown}
}

// Tiers returns a copy of all tiers ordered from least to most privileged.
func (r *Registry) Tiers() []Tier {
	out := make([]Tier, len(r.tiers))
	copy(out, r.tiers)
	return out
}
