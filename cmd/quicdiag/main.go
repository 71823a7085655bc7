// Main package in quicdiag implements a command line tool for converting
// newline-delimited JSON connection snapshots into a CSV file, for
// loading into a spreadsheet or a bulk analysis pipeline.
package main

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	// A variable to enable mocking for testing.
	logFatal = log.Fatal
)

// Snapshot is one line of the connection-diagnostics stream a quiccored
// process can be configured to emit: one record per connection per
// polling interval, enough to reconstruct a loss/congestion timeline
// without replaying the raw packet trace.
type Snapshot struct {
	TraceID          string `json:"trace_id" csv:"TraceID"`
	State            string `json:"state" csv:"State"`
	SmoothedRTTMicros int64  `json:"srtt_us" csv:"SRTTMicros"`
	MinRTTMicros      int64  `json:"min_rtt_us" csv:"MinRTTMicros"`
	CongestionWindow  uint64 `json:"cwnd" csv:"CongestionWindow"`
	BytesInFlight     uint64 `json:"bytes_in_flight" csv:"BytesInFlight"`
	BytesSent         uint64 `json:"bytes_sent" csv:"BytesSent"`
	BytesReceived     uint64 `json:"bytes_received" csv:"BytesReceived"`
	PacketsLost       uint64 `json:"packets_lost" csv:"PacketsLost"`
	CongestionEvents  uint64 `json:"congestion_events" csv:"CongestionEvents"`
}

// readSnapshots parses one JSON Snapshot per line from rdr, skipping
// blank lines.
func readSnapshots(rdr io.Reader) ([]*Snapshot, error) {
	var snaps []*Snapshot
	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s := &Snapshot{}
		if err := json.Unmarshal([]byte(line), s); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return snaps, nil
}

func toCSV(snapshots []*Snapshot, wtr io.Writer) error {
	return gocsv.Marshal(snapshots, wtr)
}

// openFile opens fn, or stdin if fn is empty.
func openFile(fn string) (io.ReadCloser, error) {
	if fn == "" {
		return os.Stdin, nil
	}
	return os.Open(fn)
}

func main() {
	args := os.Args[1:]

	var fn string
	if len(args) == 1 {
		fn = args[0]
	} else if len(args) > 1 {
		logFatal("Too many command-line arguments.")
	}

	source, err := openFile(fn)
	rtx.Must(err, "Could not open file %q", fn)
	defer source.Close()

	snaps, err := readSnapshots(source)
	rtx.Must(err, "Could not read snapshots")
	rtx.Must(toCSV(snaps, os.Stdout), "Could not convert input to CSV")
}
