package raft

// PersistentState is the hook spec.md §9 asks for but does not
// require: "leave a hook to persist these three fields before
// replying to each message that mutates them." Nothing in this
// package calls a real disk writer — persistent storage is an
// explicit non-goal (spec.md §1) — but every mutation of term,
// votedFor, or the log still runs through one of these three methods,
// so a caller that does want durability only has to implement this
// interface.
type PersistentState interface {
	SaveTerm(term int)
	SaveVote(term int, votedFor string)
	SaveLog(log []Entry)
}

// NopPersister is the default PersistentState: it does nothing, which
// preserves the source's in-memory, crash-loses-everything behavior.
type NopPersister struct{}

func (NopPersister) SaveTerm(int)         {}
func (NopPersister) SaveVote(int, string) {}
func (NopPersister) SaveLog([]Entry)      {}
