// example-eventsocket-client is a minimal reference implementation of a
// quic-core eventsocket client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/quic-core/eventsocket"
)

var (
	mainCtx, mainCancel = context.WithCancel(context.Background())
)

// event contains fields for an open event.
type event struct {
	timestamp  time.Time
	traceID    string
	localCID   string
	remoteAddr string
}

// handler implements the eventsocket.Handler interface.
type handler struct {
	events chan event
}

// Opened is called synchronously, and blocks, for every connection-open event.
func (h *handler) Opened(ctx context.Context, timestamp time.Time, traceID, localCID, remoteAddr string) {
	log.Println("open ", traceID, timestamp, localCID, remoteAddr)
	h.events <- event{timestamp: timestamp, traceID: traceID, localCID: localCID, remoteAddr: remoteAddr}
}

// Closed is called single-threaded and blocking for every connection-close event.
func (h *handler) Closed(ctx context.Context, timestamp time.Time, traceID string) {
	log.Println("close", traceID, timestamp)
}

// ProcessOpenEvents reads and processes events received by the open handler.
func (h *handler) ProcessOpenEvents(ctx context.Context) {
	for {
		select {
		case e := <-h.events:
			log.Println("processing", e)
		case <-ctx.Done():
			log.Println("shutdown")
			return
		}
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")
	defer mainCancel()

	if *eventsocket.Filename == "" {
		panic("-quiccore.eventsocket path is required")
	}

	h := &handler{events: make(chan event)}

	// Process events received by the eventsocket handler. The goroutine will
	// block until an open event occurs.
	go h.ProcessOpenEvents(mainCtx)

	// Begin listening on the eventsocket for new events, and dispatch them to
	// the given handler.
	go eventsocket.MustRun(mainCtx, *eventsocket.Filename, h)

	<-mainCtx.Done()
	fmt.Println("ok")
}
