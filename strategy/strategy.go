package strategy

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/vantari/imagefront"
)

// Parse returns the strategy registered under name.
func Parse(name string) (imagefront.Strategy, error) {
	switch name {
	case imagefront.StrategyRoundRobin:
		return NewRoundRobin(), nil
	case imagefront.StrategyRandom, "":
		return Random{}, nil
	case imagefront.StrategyLeastRecent:
		return LeastRecent{}, nil
	case imagefront.StrategyLeastUsed:
		return LeastUsed{}, nil
	}
	return nil, fmt.Errorf("strategy: unknown rotation strategy %q", name)
}

// Random picks uniformly among eligible credentials. Stateless.
type Random struct{}

var _ imagefront.Strategy = Random{}

func (Random) Name() string { return imagefront.StrategyRandom }

func (Random) Pick(eligible []imagefront.Credential) (imagefront.Credential, bool) {
	if len(eligible) == 0 {
		return imagefront.Credential{}, false
	}
	return eligible[rand.Intn(len(eligible))], true
}

// LeastRecent picks the credential with the smallest lastUsedAt, so a
// never-used credential always goes first. Ties break by id for determinism.
type LeastRecent struct{}

var _ imagefront.Strategy = LeastRecent{}

func (LeastRecent) Name() string { return imagefront.StrategyLeastRecent }

func (LeastRecent) Pick(eligible []imagefront.Credential) (imagefront.Credential, bool) {
	if len(eligible) == 0 {
		return imagefront.Credential{}, false
	}
	ordered := make([]imagefront.Credential, len(eligible))
	copy(ordered, eligible)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].LastUsedAt != ordered[j].LastUsedAt {
			return ordered[i].LastUsedAt < ordered[j].LastUsedAt
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered[0], true
}

// LeastUsed picks the credential with the smallest daily counter, leveling
// load across the pool within the current window. Ties break by lastUsedAt
// ascending, then id.
type LeastUsed struct{}

var _ imagefront.Strategy = LeastUsed{}

func (LeastUsed) Name() string { return imagefront.StrategyLeastUsed }

func (LeastUsed) Pick(eligible []imagefront.Credential) (imagefront.Credential, bool) {
	if len(eligible) == 0 {
		return imagefront.Credential{}, false
	}
	ordered := make([]imagefront.Credential, len(eligible))
	copy(ordered, eligible)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Usage.Daily != ordered[j].Usage.Daily {
			return ordered[i].Usage.Daily < ordered[j].Usage.Daily
		}
		if ordered[i].LastUsedAt != ordered[j].LastUsedAt {
			return ordered[i].LastUsedAt < ordered[j].LastUsedAt
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered[0], true
}
