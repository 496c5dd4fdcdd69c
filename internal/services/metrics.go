package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the framework's Prometheus metrics
type Metrics struct {
	Spawns          prometheus.Counter
	Despawns        prometheus.Counter
	SwallowedEvents *prometheus.CounterVec
	LexiconMatches  prometheus.Counter
	ActiveBots      prometheus.GaugeFunc
	InactiveBots    prometheus.GaugeFunc
}

var globalMetrics *Metrics

// InitMetrics registers the framework metrics on the default registry
func InitMetrics(registry *Registry) *Metrics {
	m := &Metrics{
		Spawns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomframe_spawns_total",
			Help: "Total number of bots spawned",
		}),
		Despawns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomframe_despawns_total",
			Help: "Total number of bots despawned",
		}),
		SwallowedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomframe_swallowed_events_total",
			Help: "Events suppressed because the target bot was inactive",
		}, []string{"kind"}), // kind: "event-swallowed" or "hears-swallowed"
		LexiconMatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomframe_lexicon_matches_total",
			Help: "Total number of messages matched by a lexicon entry",
		}),
		ActiveBots: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "roomframe_bots_active",
			Help: "Bots currently permitted to interact",
		}, func() float64 {
			active, _ := registry.Counts()
			return float64(active)
		}),
		InactiveBots: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "roomframe_bots_inactive",
			Help: "Bots currently disabled by membership rules",
		}, func() float64 {
			_, inactive := registry.Counts()
			return float64(inactive)
		}),
	}
	globalMetrics = m
	return m
}

// GetMetrics returns the registered metrics, or nil before InitMetrics
func GetMetrics() *Metrics {
	return globalMetrics
}
