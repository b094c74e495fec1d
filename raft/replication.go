package raft

import "time"

// maxBatchEntries is the probe/throttle cap of spec.md §4.3 "Batch
// construction": if a follower is more than this many entries behind,
// send it an empty AppendEntry instead of its whole backlog.
const maxBatchEntries = 80

// broadcastHeartbeat sends the periodic `update` (spec.md §4.3
// "Heartbeat") to every peer and records the send time so loop() can
// schedule the next one ~100ms out.
func (s *Server) broadcastHeartbeat() {
	s.lastHeartbeatSent = time.Now()
	for _, peer := range s.peers {
		s.send(Message{
			Dst:          peer,
			Type:         TypeUpdate,
			Term:         s.term,
			CommitLength: s.commitIndex,
		})
	}
}

// appendCommand is the leader-side entry point for a client put
// (spec.md §4.3 "On client put at leader"): append the entry, advance
// our own match_index, and replicate to every peer. mid dedup (spec.md
// §9 open question) is handled by the caller, client.go's handlePut.
func (s *Server) appendCommand(cmd Command) {
	entry := Entry{Command: cmd, Term: s.term}
	s.raftLog.Append(entry)
	s.persist.SaveLog(s.snapshotLog())
	s.matchIndex[s.id] = s.raftLog.LastIndex()
	s.awaitingCommit[s.raftLog.LastIndex()] = cmd

	for _, peer := range s.peers {
		s.sendAppendEntry(peer)
	}
}

// snapshotLog is a small helper for the persistence hook, which takes
// a plain slice rather than reaching into Log's internals.
func (s *Server) snapshotLog() []Entry {
	return s.raftLog.EntriesFrom(0)
}

// sendAppendEntry builds and sends one AppendEntry to peer from the
// leader's current next_index[peer], per spec.md §4.3 "Batch
// construction".
func (s *Server) sendAppendEntry(peer string) {
	ni := s.nextIndex[peer]

	var entries []Entry
	if s.raftLog.LastIndex()-ni > maxBatchEntries {
		entries = nil
	} else {
		entries = s.raftLog.EntriesFrom(ni)
	}

	var lastTerm *int
	if ni > 0 {
		lastTerm = intPtr(s.raftLog.TermAt(ni))
	}

	s.send(Message{
		Dst:          peer,
		Type:         TypeAppendEntry,
		Term:         s.term,
		CommitLength: s.commitIndex,
		LastIndex:    ni,
		LastTerm:     lastTerm,
		Entries:      entriesToWire(entries),
		KVStoreLen:   len(s.kv),
	})
}

// handleAppendEntryResponse implements spec.md §4.3 "On
// AppendEntryResponse".
func (s *Server) handleAppendEntryResponse(msg Message) {
	s.stepDownIfStale(msg.Term)
	if s.role != Leader {
		return
	}
	if msg.Term > s.term {
		return
	}

	peer := msg.Src
	if !s.peers.Contains(peer) {
		return
	}

	if parseBoolString(msg.Success) {
		s.matchIndex[peer] = msg.LogLength
		s.nextIndex[peer] = msg.LogLength
		s.commitAdvance()
		return
	}

	if s.nextIndex[peer] > 0 {
		s.nextIndex[peer]--
	}
	s.sendAppendEntry(peer)
}

// commitAdvance implements spec.md §4.3 "Commit Advance", including
// the stricter safe reading called out in spec.md §9: a leader only
// directly commits entries replicated in its own current term.
//
// A naive count-one-index-at-a-time version of this can wedge: once a
// current-term entry N reaches quorum, the log matching property
// guarantees every entry below N is identical across that same
// quorum, so they're safe to commit too even though none of them
// would individually pass the "term == current term" test. Gating
// each index independently, in order, misses that and can get stuck
// forever behind an uncommitted prior-term entry. So this scans from
// the end of the log backward for the *highest* N that both has
// quorum support and was appended in the current term, and commits
// the whole prefix up through N in one pass.
func (s *Server) commitAdvance() {
	quorum := s.peers.Quorum()
	target := s.commitIndex
	for n := s.raftLog.LastIndex(); n > s.commitIndex; n-- {
		count := 1 // self: match_index[self] == len(log) always satisfies this
		for _, peer := range s.peers {
			if s.matchIndex[peer] >= n {
				count++
			}
		}
		if count < quorum {
			continue
		}
		if s.raftLog.TermAt(n) != s.term {
			continue
		}
		target = n
		break
	}

	for s.commitIndex < target {
		s.commitIndex++
		entry := s.raftLog.EntryAt(s.commitIndex)
		s.applyToStore(entry.Command)

		if cmd, ok := s.awaitingCommit[s.commitIndex]; ok {
			delete(s.awaitingCommit, s.commitIndex)
			s.committed[sessionKey(cmd.ClientID, cmd.RequestID)] = true
			s.send(Message{
				Dst:  cmd.ClientID,
				Type: TypeOk,
				MID:  cmd.RequestID,
			})
			s.metrics.IncClientRequests("ok")
		}
	}
}

func (s *Server) applyToStore(cmd Command) {
	s.kv[cmd.Key] = cmd.Value
}

func sessionKey(clientID, requestID string) string {
	return clientID + "|" + requestID
}
