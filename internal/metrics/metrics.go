// Package metrics holds the prometheus collectors shared by the API client and the
// login orchestrators.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the counters for one session. Each Session owns its own set so tests
// and multiple sessions in one process don't collide on the default registry.
type Collectors struct {
	Requests      *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	LoginAttempts *prometheus.CounterVec
}

func New() *Collectors {
	return &Collectors{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniapp",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniapp",
			Subsystem: "api",
			Name:      "token_refreshes_total",
			Help:      "Refresh token exchanges by outcome.",
		}, []string{"outcome"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniapp",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Automatic platform login attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
	}
}

// Register adds the collectors to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.Requests, c.Refreshes, c.LoginAttempts} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
