package raft

import "fmt"

// Log is the ordered, append-mostly sequence of (command, term)
// entries that backs a replica. It is conceptually 1-indexed per
// spec.md §3 ("log: ordered sequence of Entry, 1-indexed
// conceptually"); internally it's a plain 0-indexed slice and callers
// translate, the same trade the teacher's Log type made between
// "index" (1-based, durable) and slice position.
type Log struct {
	entries []Entry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// LastIndex is the conceptual length of the log (spec.md's "len(log)").
func (l *Log) LastIndex() int {
	return len(l.entries)
}

// LastTerm is the term of the last entry, or 0 if the log is empty.
func (l *Log) LastTerm() int {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// TermAt returns the term of the entry at 1-based index i. i must be
// in [1, LastIndex()].
func (l *Log) TermAt(i int) int {
	return l.entries[i-1].Term
}

// EntryAt returns the entry at 1-based index i.
func (l *Log) EntryAt(i int) Entry {
	return l.entries[i-1]
}

// Append adds entries to the end of the log. A leader only ever
// appends (spec.md invariant 4: "Leader append-only").
func (l *Log) Append(entries ...Entry) {
	l.entries = append(l.entries, entries...)
}

// EntriesFrom returns a copy of the suffix starting at 1-based index
// from+1 (i.e. the entries the leader still owes a follower whose
// next_index is `from`).
func (l *Log) EntriesFrom(from int) []Entry {
	if from >= len(l.entries) {
		return nil
	}
	out := make([]Entry, len(l.entries)-from)
	copy(out, l.entries[from:])
	return out
}

// Truncate discards every entry beyond 1-based index n, keeping
// l.entries[:n].
func (l *Log) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(l.entries) {
		return
	}
	l.entries = l.entries[:n]
}

// Reconcile implements spec.md §4.5: given the leader's suffix
// starting at expectedIndex (its last_index), keep our own prefix up
// to expectedIndex, discard a divergent local suffix, and append
// whatever of incoming isn't already present.
//
// The caller (handleAppendEntry) is expected to have already verified
// the consistency check in spec.md §4.4 step 3, so the prefix up to
// expectedIndex is known to match the leader's.
func (l *Log) Reconcile(incoming []Entry, expectedIndex int) {
	if len(l.entries) > expectedIndex {
		// Compare the overlapping tail at the last position both sides
		// have: if our term there disagrees with the leader's incoming
		// term at the same offset, our suffix diverged and must be
		// discarded. If it agrees, the log matching property makes
		// every earlier overlapping entry identical too.
		overlap := len(l.entries) - expectedIndex
		if overlap > len(incoming) {
			overlap = len(incoming)
		}
		if overlap > 0 {
			localTerm := l.entries[expectedIndex+overlap-1].Term
			incomingTerm := incoming[overlap-1].Term
			if localTerm != incomingTerm {
				l.Truncate(expectedIndex)
			}
		}
	}

	k := len(l.entries) - expectedIndex
	if k < 0 {
		k = 0
	}
	if k < len(incoming) {
		l.Append(incoming[k:]...)
	}
}

// ConsistentWith implements the prefix-match check of spec.md §4.4
// step 3: len(log) >= lastIndex AND (lastIndex == 0 OR the term at
// lastIndex matches lastTerm).
func (l *Log) ConsistentWith(lastIndex, lastTerm int) bool {
	if l.LastIndex() < lastIndex {
		return false
	}
	if lastIndex == 0 {
		return true
	}
	return l.TermAt(lastIndex) == lastTerm
}

func (l *Log) String() string {
	return fmt.Sprintf("Log{len=%d lastTerm=%d}", l.LastIndex(), l.LastTerm())
}
