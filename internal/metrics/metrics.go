// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts dispatched invocations by resolved command and outcome kind.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nari_commands_total",
		Help: "Total number of command invocations by outcome",
	}, []string{"command", "kind"})

	// CommandDuration tracks time from resolve to reply.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nari_command_duration_seconds",
		Help:    "Histogram of command dispatch duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// BadgesIssued counts committed approvals.
	BadgesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nari_badges_issued_total",
		Help: "Total number of badges issued",
	})

	// BadgesRevoked counts committed revocations.
	BadgesRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nari_badges_revoked_total",
		Help: "Total number of badges revoked",
	})

	// CacheOperations tracks badge lookup cache hits and misses.
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nari_cache_operations_total",
		Help: "Total number of badge cache hits and misses",
	}, []string{"result"})

	// GatewayActions counts role and kick requests sent to the messaging gateway.
	GatewayActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nari_gateway_actions_total",
		Help: "Total number of gateway actions by result",
	}, []string{"action", "result"})

	// SyncRuns counts ledger backup attempts per destination.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nari_sync_runs_total",
		Help: "Total number of ledger backup runs by result",
	}, []string{"destination", "result"})
)

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultHit   = "hit"
	ResultMiss  = "miss"
)

// Outcome maps an error to ResultOK or ResultError.
func Outcome(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
