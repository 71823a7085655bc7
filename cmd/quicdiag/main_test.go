package main

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func TestMainTooManyArgs(t *testing.T) {
	defer func(args []string) {
		os.Args = args
		logFatal = log.Fatal
	}(os.Args)

	os.Args = []string{"test_quicdiag", "file1", "file2"}
	logFatal = func(...interface{}) {
		panic("panic instead of log.Fatal")
	}

	defer func() {
		e := recover()
		if e == nil {
			t.Error("Should have panicked")
		}
	}()

	main()
}

func TestReadSnapshotsSkipsBlankLines(t *testing.T) {
	input := strings.NewReader(`{"trace_id":"a","state":"connected","srtt_us":5000,"cwnd":12000}
` + "\n" + `{"trace_id":"b","state":"closing","srtt_us":9000,"cwnd":6000}
`)
	snaps, err := readSnapshots(input)
	if err != nil {
		t.Fatalf("readSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("len(snaps) = %d, want 2", len(snaps))
	}
	if snaps[0].TraceID != "a" || snaps[1].TraceID != "b" {
		t.Errorf("unexpected TraceIDs: %q, %q", snaps[0].TraceID, snaps[1].TraceID)
	}
	if snaps[0].SmoothedRTTMicros != 5000 {
		t.Errorf("SmoothedRTTMicros = %d, want 5000", snaps[0].SmoothedRTTMicros)
	}
}

func TestReadSnapshotsRejectsMalformedJSON(t *testing.T) {
	if _, err := readSnapshots(strings.NewReader("not json\n")); err == nil {
		t.Error("expected an error for malformed JSON input")
	}
}

func TestToCSV(t *testing.T) {
	snaps := []*Snapshot{
		{TraceID: "conn-1", State: "connected", SmoothedRTTMicros: 12000, CongestionWindow: 14720, PacketsLost: 2},
		{TraceID: "conn-2", State: "draining", SmoothedRTTMicros: 48000, CongestionWindow: 2920, PacketsLost: 0},
	}
	buf := bytes.NewBuffer(nil)
	if err := toCSV(snaps, buf); err != nil {
		t.Fatalf("toCSV: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3 (header + 2 records)", len(lines))
	}
	header := strings.Split(lines[0], ",")
	if header[0] != "TraceID" {
		t.Errorf("header[0] = %q, want TraceID", header[0])
	}
	record := strings.Split(lines[1], ",")
	if record[0] != "conn-1" {
		t.Errorf("record[0] = %q, want conn-1", record[0])
	}
}

func TestOpenFileDefaultsToStdin(t *testing.T) {
	rc, err := openFile("")
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	if rc != os.Stdin {
		t.Error("openFile(\"\") should return os.Stdin")
	}
}

func TestOpenFileOpensNamedFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/snapshots.jsonl"
	if err := os.WriteFile(path, []byte(`{"trace_id":"x"}`+"\n"), 0666); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rc, err := openFile(path)
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer rc.Close()
	snaps, err := readSnapshots(rc)
	if err != nil {
		t.Fatalf("readSnapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].TraceID != "x" {
		t.Errorf("snaps = %+v, want one record with TraceID x", snaps)
	}
}
