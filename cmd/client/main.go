// Command client is the bundled get/put client described in
// SPEC_FULL.md's SUPPLEMENTED FEATURES: it talks the same UDP/JSON
// wire format as a replica (spec.md §6), retargets itself at the
// leader a `redirect` reply names, and retries on timeout.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bschaefer/raftkv/raft"
)

const requestTimeout = 500 * time.Millisecond
const maxAttempts = 10

func main() {
	if len(os.Args) < 5 {
		fmt.Fprintln(os.Stderr, "usage: client <my-port> <replica-port> get <key>")
		fmt.Fprintln(os.Stderr, "       client <my-port> <replica-port> put <key> <value>")
		os.Exit(1)
	}

	myPort, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	replicaPort, err := strconv.Atoi(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid replica port %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	op := os.Args[3]

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: myPort})
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	clientID := strconv.Itoa(myPort)
	target := replicaPort

	var req raft.Message
	switch op {
	case "get":
		req = raft.Message{Type: raft.TypeGet, Key: os.Args[4], MID: uuid.NewString()}
	case "put":
		if len(os.Args) < 6 {
			fmt.Fprintln(os.Stderr, "put requires a value")
			os.Exit(1)
		}
		req = raft.Message{Type: raft.TypePut, Key: os.Args[4], Value: os.Args[5], MID: uuid.NewString()}
	default:
		fmt.Fprintf(os.Stderr, "unknown operation %q\n", op)
		os.Exit(1)
	}
	req.Src = clientID
	req.Dst = strconv.Itoa(target)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, ok := roundTrip(conn, target, req)
		if !ok {
			continue
		}
		switch resp.Type {
		case raft.TypeOk:
			fmt.Println(resp.Value)
			return
		case raft.TypeRedirect:
			// resp.Leader carries the replica id learned of; under the
			// id-doubles-as-port convention cmd/replica/main.go uses,
			// that's directly dialable. If no leader is known yet
			// (still raft.Broadcast), fall back to retrying the same
			// replica once election settles.
			if leaderPort, err := strconv.Atoi(resp.Leader); err == nil && resp.Leader != raft.Broadcast {
				target = leaderPort
				req.Dst = resp.Leader
			} else {
				time.Sleep(requestTimeout)
			}
			continue
		}
	}

	fmt.Fprintln(os.Stderr, "giving up after retries")
	os.Exit(1)
}

func roundTrip(conn *net.UDPConn, targetPort int, req raft.Message) (raft.Message, bool) {
	payload, _ := json.Marshal(req)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: targetPort}
	if _, err := conn.WriteToUDP(payload, addr); err != nil {
		return raft.Message{}, false
	}

	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	buf := make([]byte, 64*1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return raft.Message{}, false
	}

	var resp raft.Message
	if err := json.NewDecoder(bytes.NewReader(buf[:n])).Decode(&resp); err != nil {
		return raft.Message{}, false
	}
	return resp, true
}
