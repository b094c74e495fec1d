package raft

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Role mirrors the teacher's Follower/Candidate/Leader string
// constants, generalized to a defined type instead of bare strings.
type Role string

const (
	Follower  Role = "Follower"
	Candidate Role = "Candidate"
	Leader    Role = "Leader"
)

var (
	// MinimumElectionTimeoutMs / MaximumElectionTimeoutMs bound the
	// randomized election timer (spec.md §3: "re-sampled uniformly in
	// [300ms, 500ms] on every reset"). Exported as vars, not consts,
	// the same way the teacher exposes MinimumElectionTimeoutMs so
	// tests can shrink the window and run fast.
	MinimumElectionTimeoutMs = 300
	MaximumElectionTimeoutMs = 500

	// HeartbeatIntervalMs is the leader's broadcast period (spec.md
	// §4.1: "wait up to 100ms"). It must stay well below
	// MinimumElectionTimeoutMs (spec.md §5).
	HeartbeatIntervalMs = 100
)

// ElectionTimeout returns a fresh randomized election timeout.
func ElectionTimeout() time.Duration {
	span := MaximumElectionTimeoutMs - MinimumElectionTimeoutMs
	ms := MinimumElectionTimeoutMs
	if span > 0 {
		ms += rand.Intn(span)
	}
	return time.Duration(ms) * time.Millisecond
}

// HeartbeatInterval returns the leader's broadcast interval.
func HeartbeatInterval() time.Duration {
	return time.Duration(HeartbeatIntervalMs) * time.Millisecond
}

// Transport is the only thing the core replica needs from the network
// layer: send one message, and wait up to a deadline for the next one.
// Everything about sockets, retries on send failure, and datagram
// framing lives on the other side of this interface (spec.md §1: "the
// core consumes a message-send and a bounded-wait message-receive
// primitive").
type Transport interface {
	Send(msg Message) error
	// Receive blocks for up to timeout waiting for an inbound message.
	// ok is false on timeout.
	Receive(timeout time.Duration) (msg Message, ok bool)
}

// pendingRequest is a queued client get/put received while
// current_leader == Broadcast (spec.md §3 "pending").
type pendingRequest struct {
	Src string
	MID string
}

// Metrics is the set of observations the replica reports; see the
// metrics package for the Prometheus-backed implementation. Kept as
// an interface here so the core package doesn't import Prometheus
// directly (following the teacher's habit of keeping Server decoupled
// from its transport/http package).
type Metrics interface {
	SetTerm(term int)
	SetRole(role string)
	SetCommitIndex(index int)
	SetLogLength(n int)
	IncClientRequests(result string)
	IncElections()
}

type nopMetrics struct{}

func (nopMetrics) SetTerm(int)              {}
func (nopMetrics) SetRole(string)           {}
func (nopMetrics) SetCommitIndex(int)       {}
func (nopMetrics) SetLogLength(int)         {}
func (nopMetrics) IncClientRequests(string) {}
func (nopMetrics) IncElections()            {}

// Server is the single-threaded Raft replica. One loop() goroutine
// owns every field below and is the only thing that ever reads or
// writes them directly, which is how spec.md §5 gets away with no
// locks anywhere in the core: "single-threaded cooperative... there
// are no shared-memory data races." Other goroutines (the debug HTTP
// surface, tests) only ever reach these fields indirectly, by handing
// loop() a closure through runInLoop and waiting for it to run there.
type Server struct {
	id        string
	peers     Peers
	transport Transport
	persist   PersistentState
	metrics   Metrics
	log       *logrus.Entry

	role          Role
	term          int
	votedFor      string
	currentLeader string

	raftLog *Log
	kv      map[string]string

	commitIndex int
	nextIndex   map[string]int
	matchIndex  map[string]int

	votesReceived int

	// committed[sessionKey(client, MID)] records puts that have already
	// been committed by this leader, so a retried put is acknowledged
	// again instead of appended twice (spec.md §9, "Duplicate client
	// replies" open question, resolved: dedup by (client, MID)).
	committed map[string]bool
	// awaitingCommit maps a 1-based log index this leader appended to
	// the (client, MID) that should receive "ok" once it commits.
	awaitingCommit map[int]Command

	pending []pendingRequest

	lastHeartbeat     time.Time
	electionTimeout   time.Duration
	lastHeartbeatSent time.Time

	// requests carries read-only closures from other goroutines (the
	// debug HTTP surface, tests) over to loop(), the same channel
	// hand-off the teacher's http package used instead of reading
	// Server fields directly — loop() is the only goroutine allowed to
	// touch them (spec.md §5).
	requests chan func()

	stop chan struct{}
	done chan struct{}
}

// Config collects the construction-time dependencies for a Server.
type Config struct {
	ID        string
	Peers     Peers
	Transport Transport
	Persist   PersistentState
	Metrics   Metrics
	Logger    *logrus.Entry
}

// NewServer returns an initialized, un-started replica: FOLLOWER, term
// 0, empty log and kv store (spec.md §3 "Lifecycle").
func NewServer(cfg Config) *Server {
	if cfg.Persist == nil {
		cfg.Persist = NopPersister{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		id:              cfg.ID,
		peers:           cfg.Peers,
		transport:       cfg.Transport,
		persist:         cfg.Persist,
		metrics:         cfg.Metrics,
		log:             cfg.Logger.WithField("replica_id", cfg.ID),
		role:            Follower,
		term:            0,
		votedFor:        "",
		currentLeader:   Broadcast,
		raftLog:         NewLog(),
		kv:              make(map[string]string),
		nextIndex:       make(map[string]int),
		matchIndex:      make(map[string]int),
		committed:       make(map[string]bool),
		awaitingCommit:  make(map[int]Command),
		electionTimeout: ElectionTimeout(),
		requests:        make(chan func(), 8),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	s.lastHeartbeat = time.Now()
	return s
}

// runInLoop executes fn inside loop() and waits for it to finish,
// giving a caller on another goroutine (the debug HTTP surface, tests)
// the same exclusive access to Server's fields that every internal
// mutation already has, instead of reading them directly. Must only be
// called after Start(); it blocks until the next loop tick picks up
// the request.
func (s *Server) runInLoop(fn func()) {
	done := make(chan struct{})
	select {
	case s.requests <- func() { fn(); close(done) }:
	case <-s.done:
		return
	}
	select {
	case <-done:
	case <-s.done:
	}
}

// State returns the replica's current role.
func (s *Server) State() Role {
	var role Role
	s.runInLoop(func() { role = s.role })
	return role
}

// Term returns the replica's current term.
func (s *Server) Term() int {
	var term int
	s.runInLoop(func() { term = s.term })
	return term
}

// ID returns the replica's own id. Immutable after construction, so
// unlike the rest of these accessors it's safe to read directly.
func (s *Server) ID() string {
	return s.id
}

// LogLength returns the current length of the replicated log.
func (s *Server) LogLength() int {
	var n int
	s.runInLoop(func() { n = s.raftLog.LastIndex() })
	return n
}

// CommitIndex returns the highest log index known committed.
func (s *Server) CommitIndex() int {
	var idx int
	s.runInLoop(func() { idx = s.commitIndex })
	return idx
}

// Get returns the current value for key from the local kv store (for
// the debug status surface / tests; clients should use the get
// message type instead, which carries leader redirection).
func (s *Server) Get(key string) string {
	var value string
	s.runInLoop(func() { value = s.kv[key] })
	return value
}

// resetElectionTimer implements spec.md §4.1: "last_heartbeat := now;
// re-sample election_timeout."
func (s *Server) resetElectionTimer() {
	s.lastHeartbeat = time.Now()
	s.electionTimeout = ElectionTimeout()
}

// Start announces this replica (spec.md §6 "hello" broadcast) and
// launches the event loop in its own goroutine. The loop itself is
// single-threaded; Start just gives it somewhere to run.
func (s *Server) Start() {
	_ = s.transport.Send(Message{
		Src:    s.id,
		Dst:    Broadcast,
		Leader: Broadcast,
		Type:   TypeHello,
	})
	go s.loop()
}

// Stop halts the event loop and waits for it to exit.
func (s *Server) Stop() {
	close(s.stop)
	<-s.done
}

// loop is the single cooperative event loop described in spec.md §4.1:
// alternate between a bounded wait for an inbound message and
// timer-driven actions, dispatched by role.
func (s *Server) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		var (
			msg Message
			ok  bool
		)

		switch s.role {
		case Leader:
			wait := HeartbeatInterval() - time.Since(s.lastHeartbeatSent)
			if wait < 0 {
				wait = 0
			}
			msg, ok = s.transport.Receive(wait)
			if time.Since(s.lastHeartbeatSent) >= HeartbeatInterval() {
				s.broadcastHeartbeat()
			}
		default: // Follower, Candidate
			wait := s.electionTimeout - time.Since(s.lastHeartbeat)
			if wait < 0 {
				wait = 0
			}
			msg, ok = s.transport.Receive(wait)
			if time.Since(s.lastHeartbeat) >= s.electionTimeout {
				s.startElection()
			}
		}

		if ok {
			s.dispatch(msg)
		}

		s.drainRequests()

		s.metrics.SetTerm(s.term)
		s.metrics.SetRole(string(s.role))
		s.metrics.SetCommitIndex(s.commitIndex)
		s.metrics.SetLogLength(s.raftLog.LastIndex())
	}
}

// drainRequests answers every accessor call queued this tick (see
// runInLoop) before the loop moves on.
func (s *Server) drainRequests() {
	for {
		select {
		case req := <-s.requests:
			req()
		default:
			return
		}
	}
}

// dispatch routes one inbound message by its Type tag, per spec.md
// §9 ("model messages as a sum type ... replacing the ad-hoc string
// dispatch") — the switch below is the one place that string tag is
// allowed to drive control flow, and every branch is exhaustive over
// the wire schema in spec.md §6.
func (s *Server) dispatch(msg Message) {
	switch msg.Type {
	case TypeHello:
		// no-op: announcement only.
	case TypeGet:
		s.handleGet(msg)
	case TypePut:
		s.handlePut(msg)
	case TypeVoteRequest:
		s.handleVoteRequest(msg)
	case TypeVoteResponse:
		s.handleVoteResponse(msg)
	case TypeAppendEntry:
		s.handleAppendEntry(msg)
	case TypeAppendEntryResponse:
		s.handleAppendEntryResponse(msg)
	case TypeUpdate:
		s.handleUpdate(msg)
	default:
		s.log.WithField("type", msg.Type).Warn("dropping message of unknown type")
	}
}

// stepDownIfStale implements spec.md invariant 1 (term monotonicity):
// any received message with a larger term forces FOLLOWER, adopts the
// term, and clears the vote.
func (s *Server) stepDownIfStale(msgTerm int) {
	if msgTerm <= s.term {
		return
	}
	s.term = msgTerm
	s.role = Follower
	s.votedFor = ""
	s.persist.SaveTerm(s.term)
	s.persist.SaveVote(s.term, s.votedFor)
}

func (s *Server) send(msg Message) {
	msg.Src = s.id
	msg.Leader = s.currentLeader
	if err := s.transport.Send(msg); err != nil {
		s.log.WithError(err).WithField("dst", msg.Dst).Debug("send failed, relying on retry")
	}
}
