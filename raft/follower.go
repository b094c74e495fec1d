package raft

// handleAppendEntry implements spec.md §4.4 "Handling AppendEntry".
func (s *Server) handleAppendEntry(msg Message) {
	if msg.Term < s.term {
		s.reply(msg, Message{
			Type:    TypeAppendEntryResponse,
			Term:    s.term,
			Success: boolString(false),
		})
		return
	}

	s.term = msg.Term
	s.role = Follower
	s.votedFor = ""
	s.currentLeader = msg.Leader
	s.resetElectionTimer()
	s.persist.SaveTerm(s.term)
	s.persist.SaveVote(s.term, s.votedFor)
	s.drainPendingAsRedirects()

	lastTerm := 0
	if msg.LastTerm != nil {
		lastTerm = *msg.LastTerm
	}
	if !s.raftLog.ConsistentWith(msg.LastIndex, lastTerm) {
		s.reply(msg, Message{
			Type:    TypeAppendEntryResponse,
			Term:    s.term,
			Success: boolString(false),
		})
		return
	}

	incoming := wireToEntries(msg.Entries)
	s.raftLog.Reconcile(incoming, msg.LastIndex)
	s.persist.SaveLog(s.snapshotLog())

	for s.commitIndex < msg.CommitLength && s.commitIndex < s.raftLog.LastIndex() {
		s.commitIndex++
		s.applyToStore(s.raftLog.EntryAt(s.commitIndex).Command)
	}

	s.reply(msg, Message{
		Type:      TypeAppendEntryResponse,
		Term:      s.term,
		Success:   boolString(true),
		LogLength: s.raftLog.LastIndex(),
	})
}

// handleUpdate implements spec.md §4.4 "Handling update heartbeat".
func (s *Server) handleUpdate(msg Message) {
	if msg.Term < s.term {
		s.send(Message{
			Dst:     msg.Src,
			Type:    TypeAppendEntryResponse,
			Term:    s.term,
			Success: boolString(false),
		})
		return
	}

	s.stepDownIfStale(msg.Term)
	s.currentLeader = msg.Leader
	s.resetElectionTimer()
	s.drainPendingAsRedirects()
}
