package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del login con Twitter. Viven en un paquete aparte para que twitter y http
// las usen sin ciclos de import.

var (
	BackchannelDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twitter_backchannel_duration_seconds",
		Help:    "Latencia de las llamadas backchannel al provider",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"endpoint", "outcome"}) // outcome: ok|untrusted_endpoint|backchannel_timeout|provider_rejected|handshake_failed

	HandshakeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "twitter_handshake_outcomes_total",
		Help: "Transacciones de login terminadas, por fase terminal y tipo de error",
	}, []string{"phase", "kind"})

	ChallengesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "twitter_challenges_total",
		Help: "Redirects de autorización emitidos",
	})
)

// RegisterSignin registers the sign-in metrics on the given registry (or default if nil).
func RegisterSignin(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BackchannelDuration, HandshakeOutcomes, ChallengesIssued} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
