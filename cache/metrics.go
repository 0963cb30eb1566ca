package cache

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                            {}
func (NoopMetrics) Miss()                           {}
func (NoopMetrics) Evict(EvictReason)               {}
func (NoopMetrics) Size(int)                        {}
func (NoopMetrics) ObserveLoad(time.Duration)       {}
func (NoopMetrics) ObserveBatch(int, time.Duration) {}

var _ Metrics = NoopMetrics{}
