package binding

import (
	"sync"

	"github.com/m-lab/quic-core/connection"
)

// remoteHashKey identifies a connection by its 4-tuple-adjacent remote hash
// (remote address plus the remote's chosen connection ID), used for the
// brief window before a packet's destination CID resolves to a connection
// via Lookup — e.g. matching a Version Negotiation response against the
// connection that sent the Initial packet it answers, per
// original_source/src/core/lookup.h's QUIC_REMOTE_HASH_ENTRY.
type remoteHashKey struct {
	remoteAddr string
	remoteCID  string
}

// RemoteHashTable maps (remote address, remote connection ID) pairs to
// connections, independent of the local-CID Lookup table.
type RemoteHashTable struct {
	mu      sync.RWMutex
	entries map[remoteHashKey]*connection.Connection
}

// NewRemoteHashTable returns an empty RemoteHashTable.
func NewRemoteHashTable() *RemoteHashTable {
	return &RemoteHashTable{entries: make(map[remoteHashKey]*connection.Connection)}
}

// Add registers conn under (remoteAddr, remoteCID). It returns any
// previously registered connection for the same key, mirroring
// QuicLookupAddRemoteHash's Collision out-parameter.
func (t *RemoteHashTable) Add(remoteAddr string, remoteCID []byte, conn *connection.Connection) *connection.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := remoteHashKey{remoteAddr: remoteAddr, remoteCID: string(remoteCID)}
	prev := t.entries[key]
	t.entries[key] = conn
	return prev
}

// Find returns the connection registered under (remoteAddr, remoteCID), if
// any.
func (t *RemoteHashTable) Find(remoteAddr string, remoteCID []byte) (*connection.Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conn, ok := t.entries[remoteHashKey{remoteAddr: remoteAddr, remoteCID: string(remoteCID)}]
	return conn, ok
}

// Remove unregisters the (remoteAddr, remoteCID) entry.
func (t *RemoteHashTable) Remove(remoteAddr string, remoteCID []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, remoteHashKey{remoteAddr: remoteAddr, remoteCID: string(remoteCID)})
}
