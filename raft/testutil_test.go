package raft_test

import (
	"sync"
	"time"

	"github.com/bschaefer/raftkv/raft"
)

// memTransport is an in-process raft.Transport used by the tests
// below, the same role the teacher's NewLocalPeer/LocalPeer played:
// it lets a handful of Servers exchange messages without a real
// socket, so tests run fast and deterministically.
type memTransport struct {
	id      string
	inbox   chan raft.Message
	network *memNetwork
}

type memNetwork struct {
	mu     sync.Mutex
	inboxes map[string]chan raft.Message
	// dropped, when set, suppresses delivery to and from the named id —
	// used to simulate a partitioned/isolated replica.
	dropped map[string]bool
}

func newMemNetwork(ids ...string) *memNetwork {
	n := &memNetwork{
		inboxes: make(map[string]chan raft.Message),
		dropped: make(map[string]bool),
	}
	for _, id := range ids {
		n.inboxes[id] = make(chan raft.Message, 256)
	}
	return n
}

func (n *memNetwork) transportFor(id string) *memTransport {
	return &memTransport{id: id, inbox: n.inboxes[id], network: n}
}

// newClient registers an inbox for id (a client isn't one of the
// cluster's Server ids, so it has no inbox from newMemNetwork) and
// returns a transport tests can use to send get/put and read replies.
func (n *memNetwork) newClient(id string) *memTransport {
	n.mu.Lock()
	if _, ok := n.inboxes[id]; !ok {
		n.inboxes[id] = make(chan raft.Message, 256)
	}
	n.mu.Unlock()
	return n.transportFor(id)
}

func (n *memNetwork) isolate(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropped[id] = true
}

func (n *memNetwork) restore(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.dropped, id)
}

func (t *memTransport) Send(msg raft.Message) error {
	t.network.mu.Lock()
	if t.network.dropped[t.id] || t.network.dropped[msg.Dst] {
		t.network.mu.Unlock()
		return nil
	}
	t.network.mu.Unlock()

	if msg.Dst == raft.Broadcast {
		for id, inbox := range t.network.inboxes {
			if id == t.id {
				continue
			}
			select {
			case inbox <- msg:
			default:
			}
		}
		return nil
	}

	inbox, ok := t.network.inboxes[msg.Dst]
	if !ok {
		return nil
	}
	select {
	case inbox <- msg:
	default:
	}
	return nil
}

func (t *memTransport) Receive(timeout time.Duration) (raft.Message, bool) {
	if timeout <= 0 {
		select {
		case msg := <-t.inbox:
			return msg, true
		default:
			return raft.Message{}, false
		}
	}
	select {
	case msg := <-t.inbox:
		return msg, true
	case <-time.After(timeout):
		return raft.Message{}, false
	}
}

func newTestCluster(ids ...string) (*memNetwork, map[string]*raft.Server) {
	network := newMemNetwork(append(append([]string{}, ids...))...)
	servers := make(map[string]*raft.Server, len(ids))
	for _, id := range ids {
		peers := raft.Peers{}
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		servers[id] = raft.NewServer(raft.Config{
			ID:        id,
			Peers:     peers,
			Transport: network.transportFor(id),
		})
	}
	return network, servers
}

func startAll(servers map[string]*raft.Server) {
	for _, s := range servers {
		s.Start()
	}
}

func stopAll(servers map[string]*raft.Server) {
	for _, s := range servers {
		s.Stop()
	}
}

func awaitLeader(network *memNetwork, servers map[string]*raft.Server, timeout time.Duration) *raft.Server {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, s := range servers {
			if s.State() == raft.Leader {
				return s
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
