package imagefront

import "math/rand"

// Strategy picks the next credential to hand out from the eligible set.
// The pool calls Pick with only enabled, quota-available records, after lazy
// window resets were applied. Pick returns false when the set is empty.
//
// Implementations may keep rotation state (a round-robin cursor); that state
// is process-local and is not synchronized across processes.
type Strategy interface {
	Name() string
	Pick(eligible []Credential) (Credential, bool)
}

// Strategy names accepted in configuration. Implementations live in the
// strategy package; randomStrategy is inlined here as the default to avoid
// an import cycle.
const (
	StrategyRoundRobin  = "round_robin"
	StrategyRandom      = "random"
	StrategyLeastRecent = "least_recent"
	StrategyLeastUsed   = "least_used"
)

// KnownStrategy reports whether name is a recognized strategy name.
func KnownStrategy(name string) bool {
	switch name {
	case StrategyRoundRobin, StrategyRandom, StrategyLeastRecent, StrategyLeastUsed:
		return true
	}
	return false
}

// randomStrategy is the built-in default (and the default for dedicated
// sub-pools): a uniform pick among eligible credentials.
type randomStrategy struct{}

func (randomStrategy) Name() string { return StrategyRandom }

func (randomStrategy) Pick(eligible []Credential) (Credential, bool) {
	if len(eligible) == 0 {
		return Credential{}, false
	}
	return eligible[rand.Intn(len(eligible))], true
}
