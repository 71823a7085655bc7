package binding

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/m-lab/quic-core/connection"
)

// Mode selects how a Lookup indexes connections by local connection ID,
// matching original_source/src/core/lookup.h's QUIC_BINDING_LOOKUP_TYPE.
type Mode int

const (
	// ModeSingle is used while only one connection (client or, briefly, a
	// not-yet-accepted server connection) owns the binding.
	ModeSingle Mode = iota
	// ModeHash is a single shared hash table, used once more than one
	// connection is bound but no listener demands partitioning.
	ModeHash
	// ModeMultiHash partitions the hash table across PartitionCount
	// buckets, used once a listener is present (MaximizePartitioning),
	// to spread lock contention across the partitions a multi-core
	// server's workers each own one of.
	ModeMultiHash
)

// ErrCollision is returned by AddLocalCID when the connection ID is already bound
// to a different connection.
var ErrCollision = errors.New("binding: connection id already registered")

// Lookup maps connection IDs to connections for one Binding, upgrading
// from ModeSingle through ModeHash to ModeMultiHash as the binding
// accumulates connections, per original_source/src/core/lookup.h's
// QuicLookupMaximizePartitioning.
type Lookup struct {
	mu sync.RWMutex

	mode  Mode
	table []map[string]*connection.Connection // len 1 unless ModeMultiHash

	// owned tracks every CID key registered on behalf of a connection, so
	// RemoveConnection/MoveSourceConnectionIDs can find them all without
	// scanning every partition.
	owned map[*connection.Connection]map[string]bool
}

// DefaultPartitionCount is how many partitions MaximizePartitioning
// selects when the caller doesn't know its own worker/core count.
const DefaultPartitionCount = 16

// NewLookup returns an empty, single-connection Lookup.
func NewLookup() *Lookup {
	return &Lookup{
		mode:  ModeSingle,
		table: []map[string]*connection.Connection{make(map[string]*connection.Connection)},
		owned: make(map[*connection.Connection]map[string]bool),
	}
}

// MaximizePartitioning upgrades the lookup to ModeMultiHash with
// partitionCount buckets, re-distributing every already-registered CID. It
// is a one-way transition: calling it again with a different
// partitionCount is a no-op once already in ModeMultiHash, mirroring the
// original's "already maximized" early return.
func (l *Lookup) MaximizePartitioning(partitionCount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mode == ModeMultiHash {
		return
	}
	if partitionCount <= 0 {
		partitionCount = DefaultPartitionCount
	}
	next := make([]map[string]*connection.Connection, partitionCount)
	for i := range next {
		next[i] = make(map[string]*connection.Connection)
	}
	for _, bucket := range l.table {
		for key, conn := range bucket {
			next[l.partitionOf(key, partitionCount)][key] = conn
		}
	}
	l.table = next
	l.mode = ModeMultiHash
}

func (l *Lookup) partitionOf(key string, partitionCount int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % partitionCount
}

func (l *Lookup) bucketFor(key string) map[string]*connection.Connection {
	if len(l.table) == 1 {
		return l.table[0]
	}
	return l.table[l.partitionOf(key, len(l.table))]
}

// FindByLocalCID returns the connection registered under cid, if any.
func (l *Lookup) FindByLocalCID(cidBytes []byte) (*connection.Connection, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	conn, ok := l.bucketFor(string(cidBytes))[string(cidBytes)]
	return conn, ok
}

// AddLocalCID registers conn under cidBytes. If the CID is already bound
// to a different connection, it returns that connection and ErrCollision
// without modifying the lookup, mirroring QuicLookupAddLocalCid's
// Collision out-parameter.
func (l *Lookup) AddLocalCID(cidBytes []byte, conn *connection.Connection) (*connection.Connection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := string(cidBytes)
	bucket := l.bucketFor(key)
	if existing, ok := bucket[key]; ok && existing != conn {
		return existing, ErrCollision
	}
	bucket[key] = conn
	if l.mode == ModeSingle && len(l.owned) > 0 {
		if _, alreadyOwns := l.owned[conn]; !alreadyOwns {
			l.mode = ModeHash
		}
	}
	if l.owned[conn] == nil {
		l.owned[conn] = make(map[string]bool)
	}
	l.owned[conn][key] = true
	return nil, nil
}

// RemoveLocalCID unregisters a single CID.
func (l *Lookup) RemoveLocalCID(cidBytes []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := string(cidBytes)
	conn, ok := l.bucketFor(key)[key]
	if !ok {
		return
	}
	delete(l.bucketFor(key), key)
	if keys := l.owned[conn]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(l.owned, conn)
		}
	}
}

// RemoveConnection unregisters every CID owned by conn, e.g. on connection
// close, mirroring QuicLookupRemoveLocalCids.
func (l *Lookup) RemoveConnection(conn *connection.Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.owned[conn] {
		delete(l.bucketFor(key), key)
	}
	delete(l.owned, conn)
}

// MoveTo transfers every CID owned by conn from l to dest, mirroring
// QuicLookupMoveLocalConnectionIDs (used when a connection migrates from
// one binding to another, e.g. after an address change).
func (l *Lookup) MoveTo(dest *Lookup, conn *connection.Connection) {
	l.mu.Lock()
	keys := l.owned[conn]
	cids := make([][]byte, 0, len(keys))
	for key := range keys {
		delete(l.bucketFor(key), key)
		cids = append(cids, []byte(key))
	}
	delete(l.owned, conn)
	l.mu.Unlock()

	dest.mu.Lock()
	defer dest.mu.Unlock()
	for _, cidBytes := range cids {
		key := string(cidBytes)
		dest.bucketFor(key)[key] = conn
		if dest.owned[conn] == nil {
			dest.owned[conn] = make(map[string]bool)
		}
		dest.owned[conn][key] = true
	}
}

// Mode reports the lookup's current partitioning mode.
func (l *Lookup) Mode() Mode {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mode
}

// Len returns the total number of connection IDs registered across every
// partition.
func (l *Lookup) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, bucket := range l.table {
		n += len(bucket)
	}
	return n
}

// Connections returns every distinct connection currently registered in
// this Lookup, e.g. so a caller can periodically snapshot each one's
// diagnostic state.
func (l *Lookup) Connections() []*connection.Connection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	conns := make([]*connection.Connection, 0, len(l.owned))
	for conn := range l.owned {
		conns = append(conns, conn)
	}
	return conns
}
