// Package metrics wires replica observability onto Prometheus,
// generalizing Mathdee-KV-Store's hand-rolled Metrics/MetricsSnapshot
// (a mutex-guarded counter struct with a manual percentile sort) into
// a real metrics library, as SPEC_FULL.md's DOMAIN STACK section
// describes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements raft.Metrics on top of a set of Prometheus
// collectors scoped to one replica id.
type Collector struct {
	term         prometheus.Gauge
	role         *prometheus.GaugeVec
	commitIndex  prometheus.Gauge
	logLength    prometheus.Gauge
	clientReqs   *prometheus.CounterVec
	elections    prometheus.Counter
}

// roleValues lists every role so SetRole can zero the ones not
// currently active — a GaugeVec otherwise just accumulates stale
// series for roles the replica has left.
var roleValues = []string{"Follower", "Candidate", "Leader"}

// NewCollector builds and registers a Collector for replicaID against
// reg (pass prometheus.NewRegistry() in tests to avoid collisions with
// the global default registry).
func NewCollector(reg prometheus.Registerer, replicaID string) *Collector {
	c := &Collector{
		term: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raft_term",
			Help:        "Current Raft term.",
			ConstLabels: prometheus.Labels{"replica_id": replicaID},
		}),
		role: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "raft_role",
			Help:        "1 for the replica's current role, 0 otherwise.",
			ConstLabels: prometheus.Labels{"replica_id": replicaID},
		}, []string{"role"}),
		commitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raft_commit_index",
			Help:        "Highest log index known committed.",
			ConstLabels: prometheus.Labels{"replica_id": replicaID},
		}),
		logLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raft_log_length",
			Help:        "Length of the replicated log.",
			ConstLabels: prometheus.Labels{"replica_id": replicaID},
		}),
		clientReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "raft_client_requests_total",
			Help:        "Client get/put requests handled, by result.",
			ConstLabels: prometheus.Labels{"replica_id": replicaID},
		}, []string{"result"}),
		elections: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "raft_elections_total",
			Help:        "Elections started by this replica.",
			ConstLabels: prometheus.Labels{"replica_id": replicaID},
		}),
	}

	reg.MustRegister(c.term, c.role, c.commitIndex, c.logLength, c.clientReqs, c.elections)
	return c
}

func (c *Collector) SetTerm(term int) {
	c.term.Set(float64(term))
}

func (c *Collector) SetRole(role string) {
	for _, r := range roleValues {
		if r == role {
			c.role.WithLabelValues(r).Set(1)
		} else {
			c.role.WithLabelValues(r).Set(0)
		}
	}
}

func (c *Collector) SetCommitIndex(index int) {
	c.commitIndex.Set(float64(index))
}

func (c *Collector) SetLogLength(n int) {
	c.logLength.Set(float64(n))
}

func (c *Collector) IncClientRequests(result string) {
	c.clientReqs.WithLabelValues(result).Inc()
}

func (c *Collector) IncElections() {
	c.elections.Inc()
}
