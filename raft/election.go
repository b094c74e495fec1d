package raft

import "time"

// startElection implements spec.md §4.2 "Start Election": bump term,
// become candidate, vote for self, broadcast VoteRequest.
func (s *Server) startElection() {
	s.term++
	s.role = Candidate
	s.votedFor = s.id
	s.votesReceived = 1
	s.resetElectionTimer()
	s.persist.SaveTerm(s.term)
	s.persist.SaveVote(s.term, s.votedFor)
	s.metrics.IncElections()

	s.log.WithField("term", s.term).Info("election timeout, starting election")

	var lastTerm *int
	if s.raftLog.LastIndex() > 0 {
		lastTerm = intPtr(s.raftLog.LastTerm())
	}

	for _, peer := range s.peers {
		s.send(Message{
			Dst:       peer,
			Type:      TypeVoteRequest,
			NewTerm:   s.term,
			VotedFor:  s.id,
			LastIndex: s.raftLog.LastIndex(),
			LastTerm:  lastTerm,
		})
	}
}

// handleVoteRequest implements spec.md §4.2 "Handling VoteRequest".
func (s *Server) handleVoteRequest(msg Message) {
	candidateTerm := msg.NewTerm
	s.stepDownIfStale(candidateTerm)

	if candidateTerm < s.term {
		s.reply(msg, Message{Type: TypeVoteResponse, Term: s.term, Voted: boolString(false)})
		return
	}

	granted := s.voteRequestGranted(msg)
	if granted {
		s.votedFor = msg.VotedFor
		s.persist.SaveVote(s.term, s.votedFor)
		s.resetElectionTimer()
	}

	s.reply(msg, Message{Type: TypeVoteResponse, Term: s.term, Voted: boolString(granted)})
}

// voteRequestGranted applies the up-to-date-log comparison of spec.md
// §4.2: grant iff we haven't voted (or already voted for this
// candidate) AND the candidate's log is at least as up to date as ours.
func (s *Server) voteRequestGranted(msg Message) bool {
	if s.votedFor != "" && s.votedFor != msg.VotedFor {
		return false
	}

	if s.raftLog.LastIndex() == 0 {
		return msg.LastIndex == 0
	}

	msgLastTerm := 0
	if msg.LastTerm != nil {
		msgLastTerm = *msg.LastTerm
	}

	ourLastTerm := s.raftLog.LastTerm()
	if msgLastTerm > ourLastTerm {
		return true
	}
	if msgLastTerm == ourLastTerm && msg.LastIndex >= s.raftLog.LastIndex() {
		return true
	}
	return false
}

// handleVoteResponse implements spec.md §4.2 "Handling VoteResponse".
func (s *Server) handleVoteResponse(msg Message) {
	s.resetElectionTimer() // "receiving any vote response (defensive)"
	s.stepDownIfStale(msg.Term)

	if s.role != Candidate || msg.Term != s.term {
		return
	}
	if !parseBoolString(msg.Voted) {
		return
	}

	s.votesReceived++
	if s.votesReceived >= s.peers.Quorum() {
		s.becomeLeader()
	}
}

// becomeLeader implements the leader-transition side effects of
// spec.md §4.2: initialize next_index/match_index, broadcast an
// update, and drain the pending client queue as redirects.
func (s *Server) becomeLeader() {
	s.role = Leader
	s.currentLeader = s.id
	s.lastHeartbeatSent = time.Time{}

	for _, peer := range s.peers {
		s.nextIndex[peer] = s.raftLog.LastIndex()
		s.matchIndex[peer] = 0
	}

	s.log.WithField("term", s.term).Info("won election, becoming leader")

	s.broadcastHeartbeat()
	s.drainPendingAsRedirects()
}

// reply sends a response message back to msg's source, echoing the
// MID when present.
func (s *Server) reply(msg Message, resp Message) {
	resp.Dst = msg.Src
	resp.MID = msg.MID
	s.send(resp)
}
