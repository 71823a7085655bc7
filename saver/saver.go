// Package saver periodically snapshots every active connection's
// observable state (RTT, congestion window, bytes in flight) to
// newline-delimited JSON files that cmd/quicdiag can later convert to
// CSV.
//
//  1. Sets up a channel that accepts batches of *Record.
//  2. Maintains a map of per-connection output files, one per TraceID.
//  3. Uses several marshaller goroutines to convert Records to JSON and
//     write them to files.
//  4. Rotates a connection's output file every FileAgeLimit for
//     long-lived connections.
package saver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-lab/quic-core/connection"
)

// Errors generated by saver functions.
var (
	ErrNoMarshallers = errors.New("saver has zero marshallers")
)

// Record is one connection snapshot, using the same field names
// cmd/quicdiag's Snapshot type expects on its JSON input.
type Record struct {
	TraceID          string `json:"trace_id"`
	State            string `json:"state"`
	SmoothedRTTMicros int64  `json:"srtt_us"`
	MinRTTMicros      int64  `json:"min_rtt_us"`
	CongestionWindow  uint64 `json:"cwnd"`
	BytesInFlight     uint64 `json:"bytes_in_flight"`
}

// Snapshot builds a Record from a connection's current state. Counters
// that need a per-connection accumulator not yet wired elsewhere
// (cumulative bytes sent/received, packets lost) are left for a future
// addition once those accumulators exist.
func Snapshot(conn *connection.Connection, now time.Time) *Record {
	return &Record{
		TraceID:           conn.TraceID,
		State:             conn.State.String(),
		SmoothedRTTMicros: conn.AppData.Loss.RTT.SmoothedRTT.Microseconds(),
		MinRTTMicros:      conn.AppData.Loss.RTT.MinRTT.Microseconds(),
		CongestionWindow:  conn.Congestion.CongestionWindow(),
		BytesInFlight:     conn.Congestion.BytesInFlight(),
	}
}

// Task represents a single marshalling task: write rec as one line of
// JSON to w. A nil Record means close the writer instead.
type Task struct {
	Record *Record
	Writer io.WriteCloser
}

// MarshalChan is a channel of marshalling tasks.
type MarshalChan chan<- Task

func runMarshaller(taskChan <-chan Task, wg *sync.WaitGroup) {
	for task := range taskChan {
		if task.Record == nil {
			task.Writer.Close()
			continue
		}
		if task.Writer == nil {
			log.Fatal("saver: nil writer")
		}
		wire, err := json.Marshal(task.Record)
		if err != nil {
			log.Println(err)
			continue
		}
		if _, err := task.Writer.Write(append(wire, '\n')); err != nil {
			log.Println(err)
		}
	}
	wg.Done()
}

// NewMarshaller starts a marshaller goroutine and returns a channel
// that feeds it tasks.
func NewMarshaller(wg *sync.WaitGroup) MarshalChan {
	marshChan := make(chan Task, 100)
	wg.Add(1)
	go runMarshaller(marshChan, wg)
	return marshChan
}

// connState holds all output bookkeeping for a single connection.
type connState struct {
	TraceID    string
	StartTime  time.Time
	Sequence   int
	Expiration time.Time
	Writer     io.WriteCloser
}

// rotate opens the next output file for this connection, named after
// its TraceID and a monotonically increasing sequence number.
func (cs *connState) rotate(dir string, ageLimit time.Duration) error {
	name := filepath.Join(dir, fmt.Sprintf("%s.%05d.jsonl", cs.TraceID, cs.Sequence))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	cs.Writer = f
	cs.Expiration = time.Now().Add(ageLimit)
	cs.Sequence++
	return nil
}

// Stats summarizes how many records Saver has processed.
type Stats struct {
	TotalCount   int
	ExpiredCount int
}

// Saver fans incoming Records out to per-connection JSONL files,
// rotating each connection's file every FileAgeLimit.
type Saver struct {
	Dir          string
	FileAgeLimit time.Duration
	MarshalChans []MarshalChan
	Done         *sync.WaitGroup

	mu          sync.Mutex
	connections map[string]*connState
	stats       Stats
}

// NewSaver creates a Saver writing under dir, using numMarshaller
// goroutines to distribute the marshalling workload.
func NewSaver(dir string, numMarshaller int) *Saver {
	m := make([]MarshalChan, 0, numMarshaller)
	wg := &sync.WaitGroup{}
	for i := 0; i < numMarshaller; i++ {
		m = append(m, NewMarshaller(wg))
	}
	return &Saver{
		Dir:          dir,
		FileAgeLimit: 10 * time.Minute,
		MarshalChans: m,
		Done:         wg,
		connections:  make(map[string]*connState),
	}
}

func (svr *Saver) channelFor(traceID string) MarshalChan {
	h := fnv32(traceID)
	return svr.MarshalChans[h%uint32(len(svr.MarshalChans))]
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// queue writes rec to its connection's current output file, rotating
// the file first if one doesn't exist yet or has aged out.
func (svr *Saver) queue(rec *Record) error {
	if len(svr.MarshalChans) < 1 {
		return ErrNoMarshallers
	}
	svr.mu.Lock()
	cs, ok := svr.connections[rec.TraceID]
	if !ok {
		cs = &connState{TraceID: rec.TraceID, StartTime: time.Now()}
		svr.connections[rec.TraceID] = cs
	}
	q := svr.channelFor(rec.TraceID)
	if cs.Writer != nil && time.Now().After(cs.Expiration) {
		q <- Task{Writer: cs.Writer}
		cs.Writer = nil
	}
	if cs.Writer == nil {
		if err := cs.rotate(svr.Dir, svr.FileAgeLimit); err != nil {
			svr.mu.Unlock()
			return err
		}
	}
	svr.mu.Unlock()
	q <- Task{Record: rec, Writer: cs.Writer}
	return nil
}

// endConn closes out traceID's output file and forgets its state.
func (svr *Saver) endConn(traceID string) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	cs, ok := svr.connections[traceID]
	if ok && cs.Writer != nil {
		svr.channelFor(traceID) <- Task{Writer: cs.Writer}
	}
	delete(svr.connections, traceID)
}

// MessageSaverLoop runs until recordChan is closed, queuing every batch
// of Records it receives and recording basic stats.
func (svr *Saver) MessageSaverLoop(recordChan <-chan []*Record) {
	log.Println("saver: starting")
	for batch := range recordChan {
		for _, rec := range batch {
			if rec == nil {
				continue
			}
			svr.stats.TotalCount++
			if err := svr.queue(rec); err != nil {
				log.Println("saver:", err)
			}
		}
	}
	svr.Close()
}

// EndConnection should be called once a connection is retired, so its
// output file is flushed and closed even if no further snapshots arrive.
func (svr *Saver) EndConnection(traceID string) {
	svr.endConn(traceID)
	svr.stats.ExpiredCount++
}

// Close shuts down all marshallers and waits for every file to be
// closed.
func (svr *Saver) Close() {
	svr.mu.Lock()
	for traceID := range svr.connections {
		cs := svr.connections[traceID]
		if cs.Writer != nil {
			svr.channelFor(traceID) <- Task{Writer: cs.Writer}
		}
	}
	svr.connections = make(map[string]*connState)
	svr.mu.Unlock()

	for _, c := range svr.MarshalChans {
		close(c)
	}
	svr.Done.Wait()
}

// Stats returns the Saver's running totals.
func (svr *Saver) Stats() Stats {
	return svr.stats
}
