package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder with Prometheus collectors.
type Prometheus struct {
	draws           *prometheus.CounterVec
	drawRetries     prometheus.Counter
	sends           *prometheus.CounterVec
	statusCallbacks *prometheus.CounterVec
	lastBatch       prometheus.Gauge
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates and registers the collectors. A nil registerer falls
// back to prometheus.DefaultRegisterer, an empty namespace to "secret_santa".
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "secret_santa"
	}

	p := &Prometheus{
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "draws_total",
			Help:      "Total draw requests by outcome.",
		}, []string{"outcome"}),
		drawRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "draw_retries_total",
			Help:      "Total draw commits retried after losing a race for the recipient.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "sends_total",
			Help:      "Total outbound messages handled by the drain, by result.",
		}, []string{"result"}),
		statusCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "status_callbacks_total",
			Help:      "Total delivery status callbacks by outcome.",
		}, []string{"outcome"}),
		lastBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "last_batch_size",
			Help:      "Entries attempted by the most recent drain.",
		}),
	}

	for _, c := range []prometheus.Collector{p.draws, p.drawRetries, p.sends, p.statusCallbacks, p.lastBatch} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RecordDraw(outcome string) {
	p.draws.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) RecordDrawRetry() {
	p.drawRetries.Inc()
}

func (p *Prometheus) RecordSend(result string) {
	p.sends.WithLabelValues(result).Inc()
}

func (p *Prometheus) RecordStatusCallback(outcome string) {
	p.statusCallbacks.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) SetLastBatch(n int) {
	p.lastBatch.Set(float64(n))
}
