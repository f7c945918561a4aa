package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMeter bridges Meter to the OpenTelemetry metric API. Instruments are
// created lazily and cached by name. With no SDK installed the global meter
// provider is a no-op, so this is always safe to use.
type OTelMeter struct {
	Scope string

	mu       sync.Mutex
	counters map[string]metric.Float64Counter
	gauges   map[string]metric.Float64UpDownCounter
}

func NewOTelMeter(scope string) *OTelMeter {
	return &OTelMeter{
		Scope:    scope,
		counters: make(map[string]metric.Float64Counter),
		gauges:   make(map[string]metric.Float64UpDownCounter),
	}
}

func (m *OTelMeter) meter() metric.Meter {
	return otel.Meter(m.Scope)
}

func (m *OTelMeter) Counter(name string, value float64, labels ...Label) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter().Float64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

func (m *OTelMeter) Gauge(name string, value float64, labels ...Label) {
	m.mu.Lock()
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter().Float64UpDownCounter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.gauges[name] = g
	}
	m.mu.Unlock()
	g.Add(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

func attrs(labels []Label) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	kv := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		kv = append(kv, attribute.String(l.Key, l.Value))
	}
	return kv
}
