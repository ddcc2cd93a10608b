package metrics

import (
	"sync"
	"time"

	"marketpulse/logger"
)

// Metric types.
const (
	Counter = "counter"
	Gauge   = "gauge"
)

// Metric is one structured metric event. Series is lifted from the series
// field so per series consumers need not inspect Fields.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Series    string
	Fields    logger.Fields
}

// MetricHandler consumes metric events, e.g. the dashboard ring buffer.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler. Zero is never issued.
type MetricHandlerID uint64

type registry struct {
	mu       sync.RWMutex
	next     MetricHandlerID
	handlers map[MetricHandlerID]MetricHandler
}

var handlers = &registry{handlers: map[MetricHandlerID]MetricHandler{}}

func (r *registry) add(h MetricHandler) MetricHandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.handlers[r.next] = h
	return r.next
}

func (r *registry) remove(id MetricHandlerID) {
	r.mu.Lock()
	delete(r.handlers, id)
	r.mu.Unlock()
}

func (r *registry) reset() {
	r.mu.Lock()
	r.handlers = map[MetricHandlerID]MetricHandler{}
	r.next = 0
	r.mu.Unlock()
}

// dispatch calls every handler outside the lock so handlers may register.
func (r *registry) dispatch(m Metric) {
	r.mu.RLock()
	targets := make([]MetricHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		targets = append(targets, h)
	}
	r.mu.RUnlock()

	for _, h := range targets {
		h(m)
	}
}

// RegisterMetricHandler subscribes handler to every emitted metric. A nil
// handler is ignored and yields zero.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return handlers.add(handler)
}

// UnregisterMetricHandler removes a handler; zero is a no-op.
func UnregisterMetricHandler(id MetricHandlerID) {
	if id != 0 {
		handlers.remove(id)
	}
}

func newMetric(component, name string, value interface{}, metricType string, fields logger.Fields) Metric {
	if metricType == "" {
		metricType = Counter
	}
	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	series, _ := copied[logger.FieldSeries].(string)
	return Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Series:    series,
		Fields:    copied,
	}
}

// recordMetric logs the event and fans it out. Unnamed metrics are dropped.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	m := newMetric(component, name, value, metricType, fields)

	if log == nil {
		log = logger.GetLogger()
	}
	log.WithComponent(component).WithFields(m.Fields).WithFields(logger.Fields{
		"metric":      m.Name,
		"metric_type": m.Type,
		"value":       m.Value,
	}).Info("metric")

	handlers.dispatch(m)
	return m, true
}
