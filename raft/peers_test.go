package raft_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bschaefer/raftkv/raft"
)

func TestPeers_Quorum(t *testing.T) {
	// A 5-node cluster is 1 self + 4 peers; majority is 3.
	assert.Equal(t, 3, raft.Peers{"2", "3", "4", "5"}.Quorum())
	// A 2-node cluster needs both.
	assert.Equal(t, 2, raft.Peers{"2"}.Quorum())
	// A lone replica is its own majority.
	assert.Equal(t, 1, raft.Peers(nil).Quorum())
}

func TestPeers_Contains(t *testing.T) {
	peers := raft.Peers{"2", "3"}
	assert.True(t, peers.Contains("2"))
	assert.False(t, peers.Contains("9"))
}
