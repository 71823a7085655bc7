// Command quiccored runs a QUIC connection-protocol core as a standalone
// server: it binds a UDP socket, demultiplexes inbound datagrams to
// connections by destination CID, and drives each connection's operation
// queue from a pool of workers. TLS handshake internals are supplied by a
// tlsengine.Engine the operator plugs in separately; this binary wires
// the transport engine together, it does not implement the handshake.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/logx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/quic-core/binding"
	"github.com/m-lab/quic-core/connection"
	"github.com/m-lab/quic-core/eventsocket"
	"github.com/m-lab/quic-core/opqueue"
	"github.com/m-lab/quic-core/saver"
	"github.com/m-lab/quic-core/worker"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	listenAddr      = flag.String("listen", ":4433", "UDP address to accept QUIC traffic on")
	promAddr        = flag.String("prom", ":9090", "Prometheus metrics export address and port")
	workerCount     = flag.Int("workers", 0, "Number of worker goroutines draining connection queues, 0 means one per CPU")
	shortCIDLength  = flag.Int("short-header-cid-length", 8, "Length of the connection IDs this server issues, used to demultiplex 1-RTT packets")
	maxDatagramSize = flag.Int("max-datagram-size", 1452, "Maximum UDP payload size this server will send")
	diagDir         = flag.String("diag-dir", "", "Directory to write per-connection diagnostic snapshots (JSON lines) to, empty disables snapshotting")
	diagInterval    = flag.Duration("diag-interval", 10*time.Second, "How often to snapshot every active connection's diagnostic state")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promSrv := prometheusx.MustStartPrometheus(*promAddr)
	defer promSrv.Shutdown(ctx)

	udpAddr, err := net.ResolveUDPAddr("udp", *listenAddr)
	rtx.Must(err, "Could not resolve listen address %q", *listenAddr)

	conn, err := net.ListenUDP("udp", udpAddr)
	rtx.Must(err, "Could not listen on %q", *listenAddr)
	defer conn.Close()

	b := binding.New(binding.Config{LocalAddr: udpAddr, ServerOwned: true, Conn: conn})

	events := eventsocket.NullServer()
	if *eventsocket.Filename != "" {
		events = eventsocket.New(*eventsocket.Filename)
		rtx.Must(events.Listen(), "Could not listen on %q", *eventsocket.Filename)
		go events.Serve(ctx)
	}

	pool := worker.NewPool(*workerCount, processOperation, timerHandler{events}.onTimer)
	pool.Run()
	defer pool.Stop()

	if *diagDir != "" {
		svr := saver.NewSaver(*diagDir, 4)
		recordChan := make(chan []*saver.Record, 1)
		go svr.MessageSaverLoop(recordChan)
		go snapshotLoop(ctx, b, recordChan, *diagInterval)
		defer close(recordChan)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Print("quiccored: shutting down")
		cancel()
	}()

	log.Printf("quiccored: listening on %v", udpAddr)
	receiveLoop(ctx, b, conn, pool)
}

// receiveLoop reads inbound UDP datagrams and hands each one to
// dispatchPacket, until ctx is canceled.
func receiveLoop(ctx context.Context, b *binding.Binding, conn *net.UDPConn, pool *worker.Pool) {
	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return
		}
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.Debug.Printf("quiccored: ReadFromUDP: %v", err)
			continue
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		dispatchPacket(b, pool, packet, remote)
	}
}

// snapshotLoop periodically records every active connection's
// diagnostic state to recordChan until ctx is canceled, driving
// saver's per-connection JSONL output.
func snapshotLoop(ctx context.Context, b *binding.Binding, recordChan chan<- []*saver.Record, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			conns := b.Lookup.Connections()
			if len(conns) == 0 {
				continue
			}
			records := make([]*saver.Record, 0, len(conns))
			for _, conn := range conns {
				records = append(records, saver.Snapshot(conn, now))
			}
			recordChan <- records
		}
	}
}

// dispatchPacket demultiplexes one received datagram to the connection
// it belongs to, queuing a TypeReceivedPacket operation on whichever
// worker owns that connection, mirroring QuicBindingReceive's lookup
// path. Datagrams for unknown CIDs are dropped (a full server would
// queue a new-connection or stateless-response operation here instead;
// that decision needs the TLS engine collaborator this binary does not
// implement).
func dispatchPacket(b *binding.Binding, pool *worker.Pool, packet []byte, remote *net.UDPAddr) {
	dcid, err := binding.PeekDestinationCID(packet, *shortCIDLength)
	if err != nil {
		b.RecordDroppedPacket(binding.DropShortDatagram)
		return
	}

	conn, ok := b.Lookup.FindByLocalCID(dcid)
	if !ok {
		b.RecordDroppedPacket(binding.DropUnknownCID)
		return
	}

	w := pool.AssignConnection(conn)
	w.QueueOperation(conn, &opqueue.Operation{
		Type:    opqueue.TypeReceivedPacket,
		Payload: receivedPacket{data: packet, remote: remote},
	})
}

// receivedPacket is the Payload a TypeReceivedPacket Operation carries.
type receivedPacket struct {
	data   []byte
	remote *net.UDPAddr
}

// processOperation is the worker.ProcessFunc every connection's
// operation queue drains through. The per-type handling a production
// server needs (decrypt, frame-dispatch, ack/loss bookkeeping) is
// supplied by the connection's own methods and a tlsengine.Engine
// implementation; this dispatcher only routes.
func processOperation(conn *connection.Connection, op *opqueue.Operation) {
	switch op.Type {
	case opqueue.TypeReceivedPacket:
		pkt := op.Payload.(receivedPacket)
		logx.Debug.Printf("quiccored: connection %s: received %d bytes from %v", conn.TraceID, len(pkt.data), pkt.remote)
	default:
		logx.Debug.Printf("quiccored: connection %s: %v operation", conn.TraceID, op.Type)
	}
}

// timerHandler adapts worker.TimerFunc to also publish a close event
// when a connection's idle timer expires, so an eventsocket subscriber
// learns about the retirement without polling.
type timerHandler struct {
	events eventsocket.Server
}

func (h timerHandler) onTimer(conn *connection.Connection, timer connection.TimerType, now time.Time) {
	logx.Debug.Printf("quiccored: connection %s: %v timer fired", conn.TraceID, timer)
	switch timer {
	case connection.TimerIdle:
		conn.BeginClose(0, "idle timeout", false)
		h.events.ConnectionClosed(now, conn.TraceID)
	}
}
