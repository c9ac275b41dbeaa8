// Package strategy provides the rotation strategies for credential pools.
package strategy

import (
	"sort"
	"sync"

	"github.com/vantari/imagefront"
)

// RoundRobin cycles through eligible credentials in id order. The cursor is
// the id of the last credential handed out; if that credential has since
// been deleted or became ineligible, the cursor simply advances past it.
type RoundRobin struct {
	mu   sync.Mutex
	last string
}

var _ imagefront.Strategy = (*RoundRobin)(nil)

// NewRoundRobin creates a round-robin strategy with an empty cursor.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Name() string { return imagefront.StrategyRoundRobin }

// Pick returns the first eligible credential whose id sorts after the
// cursor, wrapping to the smallest id. Over a stable set of k eligible
// credentials this visits each exactly once per k picks.
func (r *RoundRobin) Pick(eligible []imagefront.Credential) (imagefront.Credential, bool) {
	if len(eligible) == 0 {
		return imagefront.Credential{}, false
	}

	ordered := make([]imagefront.Credential, len(eligible))
	copy(ordered, eligible)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range ordered {
		if c.ID > r.last {
			r.last = c.ID
			return c, true
		}
	}
	r.last = ordered[0].ID
	return ordered[0], true
}
