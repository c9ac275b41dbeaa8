package meter

import "github.com/vantari/imagefront"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ imagefront.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnSelect(imagefront.SelectEvent) {}
func (m *NoopMeter) OnUsage(imagefront.UsageEvent)   {}
