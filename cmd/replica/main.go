// Command replica runs a single Raft key/value store replica,
// matching the launch contract in spec.md §6: positional
// `port id peer...`.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bschaefer/raftkv/metrics"
	"github.com/bschaefer/raftkv/raft"
	"github.com/bschaefer/raftkv/statusapi"
	"github.com/bschaefer/raftkv/transport"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: replica <port> <id> <peer-id> [peer-id ...]")
		os.Exit(1)
	}

	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	id := os.Args[2]
	peers := raft.Peers(os.Args[3:])

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logger.WithField("replica_id", id)

	// Out of scope per spec.md §1, the socket itself: the peer ids
	// double as their own UDP ports, the simplest convention that
	// needs no separate config file for a fixed local cluster.
	addrs := map[string]int{id: port}
	for _, peer := range peers {
		peerPort, err := strconv.Atoi(peer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid peer id %q (must be numeric port): %v\n", peer, err)
			os.Exit(1)
		}
		addrs[peer] = peerPort
	}

	udp, err := transport.NewUDP(port, addrs, entry)
	if err != nil {
		entry.WithError(err).Fatal("failed to start transport")
	}
	defer udp.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg, id)

	server := raft.NewServer(raft.Config{
		ID:        id,
		Peers:     peers,
		Transport: udp,
		Metrics:   collector,
		Logger:    entry,
	})

	entry.WithField("peers", peers).Info("starting replica")
	server.Start()

	// Start()'d before the debug surface is exposed: its handlers read
	// Server state through the loop (raft.Server.runInLoop), which
	// needs loop() already running to drain requests.
	mux := statusapi.NewMux(server, reg)
	debugAddr := fmt.Sprintf("localhost:%d", port+1000)
	go func() {
		entry.WithField("addr", debugAddr).Info("debug HTTP surface listening")
		if err := http.ListenAndServe(debugAddr, mux); err != nil {
			entry.WithError(err).Warn("debug HTTP surface stopped")
		}
	}()

	select {}
}
