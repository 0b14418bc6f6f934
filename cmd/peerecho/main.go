// Command peerecho is a two-role smoke check for the pkg/peer transport: it
// starts an acceptor on one address and an initiator that dials it, sends a
// few requests, and prints the round-tripped replies.
//
// Grounded on other_examples/f82399fb_Snider-Mining__pkg-node-transport.go.go's
// Transport.Start/handleWSUpgrade wiring, reduced to the single Endpoint type
// pkg/peer owns.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fimkrypto/nxt-peer/pkg/peer"
)

func main() {
	var (
		listenAddr = flag.String("listen", ":9091", "address the acceptor side listens on")
		path       = flag.String("path", "/peer", "HTTP path the acceptor upgrades")
		requests   = flag.Int("requests", 3, "number of requests the initiator sends")
	)
	flag.Parse()

	logger := peer.NewBasicLogger(os.Stderr, peer.LogLevelInfo)
	cfg := peer.DefaultConfig()

	if err := runAcceptor(*listenAddr, *path, cfg, logger); err != nil {
		log.Fatalf("peerecho: starting acceptor: %v", err)
	}

	// Give the listener a moment to come up before dialing it.
	time.Sleep(100 * time.Millisecond)

	if err := runInitiator(fmt.Sprintf("ws://127.0.0.1%s%s", *listenAddr, *path), *requests, cfg, logger); err != nil {
		log.Fatalf("peerecho: initiator: %v", err)
	}
}

// runAcceptor starts an HTTP server that upgrades every request on path to a
// peer.Endpoint and echoes whatever payload it receives back to the sender.
func runAcceptor(listenAddr, path string, cfg peer.Config, logger peer.Logger) error {
	servlet := peer.ServletFunc(func(ep *peer.Endpoint, requestID int64, payload string) {
		if err := ep.SendResponse(requestID, payload); err != nil {
			logger.Log(peer.LogLevelWarn, "acceptor: failed to send response", "err", err)
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if _, err := peer.AcceptEndpoint(w, r, cfg, logger, servlet, nil); err != nil {
			logger.Log(peer.LogLevelWarn, "acceptor: upgrade failed", "err", err)
		}
	})

	srv := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log(peer.LogLevelError, "acceptor: server stopped", "err", err)
		}
	}()
	return nil
}

// runInitiator dials uri, sends n requests in sequence, and logs each reply.
func runInitiator(uri string, n int, cfg peer.Config, logger peer.Logger) error {
	ep := peer.NewInitiator(cfg, logger)
	defer ep.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok, err := ep.StartClient(ctx, uri)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", uri, err)
	}
	if !ok {
		return fmt.Errorf("peer at %s declined the upgrade", uri)
	}

	for i := 0; i < n; i++ {
		payload := fmt.Sprintf(`{"seq":%d}`, i)
		reply, err := ep.DoPost(context.Background(), payload)
		if err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
		logger.Log(peer.LogLevelInfo, "initiator: got reply", "seq", i, "payload", reply)
	}
	return nil
}
