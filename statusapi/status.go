// Package statusapi is the read-only debug HTTP surface SPEC_FULL.md
// adds as a supplemented feature: it generalizes the teacher's
// http/ subpackage (a JSON+net/http RPC surface over the core Server)
// and Mathdee-KV-Store's internal/server/http.go "/status" endpoint,
// but exposes status and metrics only — the client read/write path
// stays on the UDP transport in spec.md §6.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bschaefer/raftkv/raft"
)

// StatusResponse mirrors Mathdee-KV-Store's StatusResponse shape,
// trimmed to the fields this replica actually tracks.
type StatusResponse struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Term        int    `json:"term"`
	LogLength   int    `json:"logLength"`
	CommitIndex int    `json:"commitIndex"`
}

// Replica is the subset of *raft.Server the status endpoint reads.
type Replica interface {
	ID() string
	State() raft.Role
	Term() int
	LogLength() int
	CommitIndex() int
}

// NewMux builds the debug HTTP mux: GET /status (JSON) and GET
// /metrics (Prometheus text exposition) served off reg, the same
// registry the caller passed to metrics.NewCollector — not the global
// DefaultGatherer promhttp.Handler() would otherwise serve, which
// would make every raft_* series invisible here.
func NewMux(replica Replica, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatusResponse{
			ID:          replica.ID(),
			Role:        string(replica.State()),
			Term:        replica.Term(),
			LogLength:   replica.LogLength(),
			CommitIndex: replica.CommitIndex(),
		})
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return mux
}
