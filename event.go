package imagefront

// Meter observes pool events for monitoring/logging. All credential ids in
// events are pre-masked.
type Meter interface {
	// OnSelect is called when rotation hands out a credential.
	OnSelect(event SelectEvent)

	// OnUsage is called when a usage unit is recorded against a credential.
	OnUsage(event UsageEvent)
}

// SelectEvent describes one rotation decision.
type SelectEvent struct {
	Pool     string
	ID       string // masked
	Strategy string
	Eligible int
	Scoped   bool // true when selecting from a dedicated sub-pool
}

// UsageEvent describes one recorded usage unit.
type UsageEvent struct {
	Pool string
	ID   string // masked
}

// noopMeter is the default meter.
type noopMeter struct{}

func (noopMeter) OnSelect(SelectEvent) {}
func (noopMeter) OnUsage(UsageEvent)   {}
