// Package transport implements the UDP datagram adapter that spec.md
// §1 calls an out-of-scope "external collaborator": the raft package
// only ever sees raft.Transport's Send/Receive pair, never a socket.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bschaefer/raftkv/raft"
)

// UDP is a raft.Transport backed by a single UDP socket bound to
// localhost:port, with every peer addressed by replica id (spec.md
// §6: "Connectionless datagrams to localhost:<port>. Payload is a
// single JSON object per datagram.").
type UDP struct {
	conn *net.UDPConn
	log  *logrus.Entry

	// addrs maps a replica id to the localhost:port address it listens
	// on. The reserved Broadcast id has no entry: Send fans it out to
	// every address here.
	addrs map[string]*net.UDPAddr
}

// NewUDP opens a UDP socket on port and resolves addrs (replica id ->
// port) into dialable addresses. The socket is created once at
// construction and released at process exit (spec.md §5 "Resource
// acquisition").
func NewUDP(port int, addrs map[string]int, logger *logrus.Entry) (*UDP, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: listen on port %d: %w", port, err)
	}

	resolved := make(map[string]*net.UDPAddr, len(addrs))
	for id, p := range addrs {
		resolved[id] = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: p}
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &UDP{conn: conn, log: logger, addrs: resolved}, nil
}

// Close releases the underlying socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}

// Send implements raft.Transport. A broadcast destination (raft.Broadcast)
// fans out to every known address; send failures are logged and
// dropped per spec.md §7 — Raft's own retry loop (heartbeats, resent
// AppendEntries) is what makes delivery eventually reliable, not this
// layer.
func (u *UDP) Send(msg raft.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}

	if msg.Dst == raft.Broadcast {
		var lastErr error
		for id, addr := range u.addrs {
			if id == msg.Src {
				continue
			}
			if _, err := u.conn.WriteToUDP(payload, addr); err != nil {
				u.log.WithError(err).WithField("dst", id).Debug("broadcast send failed")
				lastErr = err
			}
		}
		return lastErr
	}

	addr, ok := u.addrs[msg.Dst]
	if !ok {
		return fmt.Errorf("transport: unknown destination %q", msg.Dst)
	}
	if _, err := u.conn.WriteToUDP(payload, addr); err != nil {
		u.log.WithError(err).WithField("dst", msg.Dst).Debug("send failed")
		return err
	}
	return nil
}

// Receive implements raft.Transport: a single bounded read, tolerant
// of malformed datagrams (spec.md §7: "logged and dropped").
func (u *UDP) Receive(timeout time.Duration) (raft.Message, bool) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		u.log.WithError(err).Warn("failed to set read deadline")
		return raft.Message{}, false
	}

	buf := make([]byte, 64*1024)
	n, _, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return raft.Message{}, false
		}
		u.log.WithError(err).Debug("receive error")
		return raft.Message{}, false
	}

	var msg raft.Message
	dec := json.NewDecoder(bytes.NewReader(buf[:n]))
	if err := dec.Decode(&msg); err != nil {
		u.log.WithError(err).Warn("dropping malformed datagram")
		return raft.Message{}, false
	}
	return msg, true
}
