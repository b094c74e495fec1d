package raft

// handleGet implements spec.md §4.6 "get".
func (s *Server) handleGet(msg Message) {
	switch {
	case s.role == Leader:
		value := s.kv[msg.Key]
		s.reply(msg, Message{Type: TypeOk, Value: value})
		s.metrics.IncClientRequests("ok")
	case s.currentLeader != Broadcast:
		s.reply(msg, Message{Type: TypeRedirect})
		s.metrics.IncClientRequests("redirect")
	default:
		s.enqueuePending(msg)
	}
}

// handlePut implements spec.md §4.6 "put", including the dedup
// resolution of the "Duplicate client replies" open question
// (spec.md §9): a MID already committed is re-acknowledged without a
// new log entry; a MID already in flight is left alone rather than
// appended twice.
func (s *Server) handlePut(msg Message) {
	if s.role != Leader {
		if s.currentLeader != Broadcast {
			s.reply(msg, Message{Type: TypeRedirect})
			s.metrics.IncClientRequests("redirect")
		} else {
			s.enqueuePending(msg)
		}
		return
	}

	cmd := Command{Key: msg.Key, Value: msg.Value, ClientID: msg.Src, RequestID: msg.MID}
	key := sessionKey(cmd.ClientID, cmd.RequestID)

	if s.committed[key] {
		s.reply(msg, Message{Type: TypeOk})
		s.metrics.IncClientRequests("ok")
		return
	}

	for _, awaiting := range s.awaitingCommit {
		if awaiting.ClientID == cmd.ClientID && awaiting.RequestID == cmd.RequestID {
			return // already in flight; the eventual commit will reply once.
		}
	}

	s.appendCommand(cmd)
}

// enqueuePending implements "pending" from spec.md §3: buffer a
// request received while current_leader == Broadcast.
func (s *Server) enqueuePending(msg Message) {
	s.pending = append(s.pending, pendingRequest{Src: msg.Src, MID: msg.MID})
}

// drainPendingAsRedirects empties the pending queue by redirecting
// each queued client to the now-known leader (spec.md §4.6: "When a
// leader is learned ... dequeue each and send redirect").
func (s *Server) drainPendingAsRedirects() {
	if s.currentLeader == Broadcast || len(s.pending) == 0 {
		return
	}
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		s.send(Message{
			Dst:  p.Src,
			Type: TypeRedirect,
			MID:  p.MID,
		})
	}
}
