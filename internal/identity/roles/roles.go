// Package roles maps a caller's role ids to the single tier their vote is
// counted under.
package roles

import (
	"errors"
	"fmt"

	"voteboard/internal/identity/models"
)

// Table is an ordered tier table. Order breaks weight ties: the earlier
// entry wins.
type Table struct {
	tiers []models.Role
	index map[string]int
}

// NewTable validates tiers and keeps their order.
func NewTable(tiers []models.Role) (*Table, error) {
	if len(tiers) == 0 {
		return nil, errors.New("role table is empty")
	}
	t := &Table{tiers: make([]models.Role, len(tiers)), index: make(map[string]int, len(tiers))}
	for i, tier := range tiers {
		if tier.ID == "" || tier.Name == "" {
			return nil, fmt.Errorf("role tier %d needs an id and a name", i)
		}
		if _, dup := t.index[tier.ID]; dup {
			return nil, fmt.Errorf("duplicate role id %q", tier.ID)
		}
		t.tiers[i] = tier
		t.index[tier.ID] = i
	}
	return t, nil
}

// HighestRole returns the greatest-weight tier among roleIDs. Unknown ids are
// ignored; false means the caller holds no recognized tier.
func (t *Table) HighestRole(roleIDs []string) (models.Role, bool) {
	best := -1
	for _, id := range roleIDs {
		i, ok := t.index[id]
		if !ok {
			continue
		}
		if best < 0 || t.tiers[i].Weight > t.tiers[best].Weight ||
			(t.tiers[i].Weight == t.tiers[best].Weight && i < best) {
			best = i
		}
	}
	if best < 0 {
		return models.Role{}, false
	}
	return t.tiers[best], true
}

// Tiers returns a copy of the table in order.
func (t *Table) Tiers() []models.Role {
	return append([]models.Role(nil), t.tiers...)
}
