package raft

import (
	"testing"
	"time"
)

// These exercise commitAdvance directly against unexported state,
// the way an integration test driven purely by timers can't reliably
// force: getting a leader into "one prior-term entry, one current-term
// entry, both replicated" requires a leader change mid-stream, which
// is exactly the scenario spec.md §9 flags as unsafe to get wrong.

func newTestLeader(term int, peers Peers) *Server {
	s := NewServer(Config{ID: "1", Peers: peers})
	s.role = Leader
	s.term = term
	for _, p := range peers {
		s.nextIndex[p] = 0
		s.matchIndex[p] = 0
	}
	return s
}

// TestCommitAdvance_WithholdsPriorTermEntryAlone matches the unsafe
// case spec.md §9 calls out: a prior-term entry that by itself has a
// replicated majority must NOT be committed directly.
func TestCommitAdvance_WithholdsPriorTermEntryAlone(t *testing.T) {
	s := newTestLeader(2, Peers{"2", "3"})
	s.raftLog.Append(Entry{Command: Command{Key: "a", Value: "1"}, Term: 1})
	s.matchIndex["2"] = 1
	s.matchIndex["3"] = 1

	s.commitAdvance()

	if s.commitIndex != 0 {
		t.Fatalf("commitIndex = %d, want 0 (prior-term entry must not commit alone)", s.commitIndex)
	}
}

// TestCommitAdvance_CurrentTermEntryCommitsThePrefixToo is the flip
// side: once a current-term entry reaches quorum, the prior-term
// entry below it commits too, in the same pass, because the log
// matching property guarantees that quorum already has it.
func TestCommitAdvance_CurrentTermEntryCommitsThePrefixToo(t *testing.T) {
	s := newTestLeader(2, Peers{"2", "3"})
	s.raftLog.Append(
		Entry{Command: Command{Key: "a", Value: "1"}, Term: 1},
		Entry{Command: Command{Key: "b", Value: "2"}, Term: 2},
	)
	s.matchIndex["2"] = 2
	s.matchIndex["3"] = 2

	s.commitAdvance()

	if s.commitIndex != 2 {
		t.Fatalf("commitIndex = %d, want 2", s.commitIndex)
	}
	if s.kv["a"] != "1" || s.kv["b"] != "2" {
		t.Fatalf("kv = %+v, want both entries applied", s.kv)
	}
}

// TestCommitAdvance_StopsBelowQuorum checks the ordinary case: no
// majority yet, nothing commits.
func TestCommitAdvance_StopsBelowQuorum(t *testing.T) {
	s := newTestLeader(1, Peers{"2", "3"})
	s.raftLog.Append(Entry{Command: Command{Key: "a", Value: "1"}, Term: 1})
	// Neither peer has replicated yet; only self (1 of 3) has it.
	s.commitAdvance()
	if s.commitIndex != 0 {
		t.Fatalf("commitIndex = %d, want 0 (no quorum yet)", s.commitIndex)
	}
}

// TestCommitAdvance_QuorumOfSelfPlusOnePeer checks the boundary: self
// plus exactly one of two peers already forms a majority of 3.
func TestCommitAdvance_QuorumOfSelfPlusOnePeer(t *testing.T) {
	s := newTestLeader(1, Peers{"2", "3"})
	s.raftLog.Append(Entry{Command: Command{Key: "a", Value: "1"}, Term: 1})
	s.matchIndex["2"] = 1
	s.commitAdvance()
	if s.commitIndex != 1 {
		t.Fatalf("commitIndex = %d, want 1", s.commitIndex)
	}
}

// TestCommitAdvance_NotifiesAwaitingClient checks the awaitingCommit ->
// ok-reply wiring fires exactly once per committed index.
func TestCommitAdvance_NotifiesAwaitingClient(t *testing.T) {
	fake := &recordingTransport{}
	s := newTestLeader(1, Peers{"2", "3"})
	s.transport = fake
	s.raftLog.Append(Entry{Command: Command{Key: "a", Value: "1", ClientID: "c1", RequestID: "m1"}, Term: 1})
	s.awaitingCommit[1] = s.raftLog.EntryAt(1).Command
	s.matchIndex["2"] = 1
	s.matchIndex["3"] = 1

	s.commitAdvance()

	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.sent))
	}
	got := fake.sent[0]
	if got.Type != TypeOk || got.Dst != "c1" || got.MID != "m1" {
		t.Fatalf("unexpected reply: %+v", got)
	}
	if !s.committed[sessionKey("c1", "m1")] {
		t.Fatal("expected committed[] to record the session key")
	}
	if _, stillAwaiting := s.awaitingCommit[1]; stillAwaiting {
		t.Fatal("awaitingCommit entry should have been cleared")
	}
}

type recordingTransport struct {
	sent []Message
}

func (r *recordingTransport) Send(msg Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) Receive(timeout time.Duration) (Message, bool) {
	return Message{}, false
}
