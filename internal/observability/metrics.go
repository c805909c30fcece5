package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors register on the default registerer; the daemon exposes them on
// its local metrics endpoint.
var (
	CertificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drift",
		Subsystem: "pki",
		Name:      "certificates_issued_total",
		Help:      "Certificates issued by the session authority.",
	})

	SignaturesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drift",
		Subsystem: "signing",
		Name:      "signatures_created_total",
		Help:      "Signatures produced, by path.",
	}, []string{"path"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drift",
		Subsystem: "signing",
		Name:      "verifications_total",
		Help:      "Verification attempts, by path and outcome.",
	}, []string{"path", "outcome"})

	MessageKeysDerived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drift",
		Subsystem: "forward",
		Name:      "message_keys_derived_total",
		Help:      "Per-message keys derived from the shared secret.",
	})

	SessionResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drift",
		Subsystem: "session",
		Name:      "resets_total",
		Help:      "Session lifecycle resets.",
	})
)

// ObserveVerification records a verification outcome for a path
// ("certificate", "data", "document", "simple").
func ObserveVerification(path string, ok bool) {
	outcome := "invalid"
	if ok {
		outcome = "valid"
	}
	Verifications.WithLabelValues(path, outcome).Inc()
}
