// Package peer implements the peer-to-peer transport layer: a custom
// 20-byte-prefixed frame format multiplexed over an upgraded HTTP
// (WebSocket) connection, with request/response correlation, optional gzip
// compression, and serialized connect attempts with cooldown.
//
// Grounded on twmb/kafka-go's pkg/kgo broker/brokerCxn split — the closest
// thing in this module's retrieval pack to "one persistent connection, many
// outstanding correlated requests, a serial reader, promise-style
// completion" — generalized from Kafka's raw-TCP wire protocol to a JSON
// payload framed over gorilla/websocket.
package peer

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// Role distinguishes which side of the upgrade an Endpoint represents. A
// single Endpoint type serves both roles, matching the teacher's habit of
// driving conditional behavior off a struct field rather than two parallel
// implementations.
type Role int8

const (
	RoleInitiator Role = iota
	RoleAcceptor
)

func (r Role) String() string {
	if r == RoleAcceptor {
		return "acceptor"
	}
	return "initiator"
}

// Endpoint owns one upgraded session and its pending-request correlation
// table. It is safe for concurrent use; mu serializes the connect path,
// mutation of nextRequestID/lastConnectAttempt/version, and every outbound
// send, but is never held across a waiter's await (SPEC_FULL §5).
type Endpoint struct {
	mu sync.Mutex

	role Role
	cfg  Config
	log  Logger

	sess   *session
	closed bool

	// terminated is set once, by the public Close or by peer-initiated
	// onClose, and never cleared: per SPEC_FULL §3 the closed state is
	// terminal, not just "currently disconnected and eligible for retry".
	// closed alone tracks the latter; terminated gates StartClient.
	terminated bool

	servlet Servlet     // set only for RoleAcceptor
	pool    *Dispatcher // set only for RoleAcceptor

	pending            map[int64]*waiter
	nextRequestID      int64
	lastConnectAttempt time.Time
	version            uint32
}

// NewInitiator returns an unconnected initiator-role Endpoint. Call
// StartClient to open it. A nil cfg uses DefaultConfig(); a nil logger
// discards all logging.
func NewInitiator(cfg Config, logger Logger) *Endpoint {
	return &Endpoint{
		role:    RoleInitiator,
		cfg:     orDefaultConfig(cfg),
		log:     orNopLogger(logger),
		pending: make(map[int64]*waiter),
	}
}

// AcceptEndpoint upgrades r/w to a WebSocket session and returns an
// already-open acceptor-role Endpoint, per SPEC_FULL §4.2's "inbound
// upgrade skips directly to [Open]". The returned Endpoint's reader
// goroutine is already running when this call returns.
//
// servlet must be non-nil. A nil pool uses SharedDispatcher().
func AcceptEndpoint(w http.ResponseWriter, r *http.Request, cfg Config, logger Logger, servlet Servlet, pool *Dispatcher) (*Endpoint, error) {
	sess, err := acceptSession(w, r)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = SharedDispatcher()
	}
	ep := &Endpoint{
		role:    RoleAcceptor,
		cfg:     orDefaultConfig(cfg),
		log:     orNopLogger(logger),
		servlet: servlet,
		pool:    pool,
		pending: make(map[int64]*waiter),
		sess:    sess,
		version: VERSION,
	}
	ep.log.Log(LogLevelInfo, "accepted peer connection")
	go sess.readLoop(ep.onBinaryMessage, ep.onClose)
	return ep, nil
}

func orDefaultConfig(cfg Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return cfg
}

func orNopLogger(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// Role reports which side of the upgrade this Endpoint represents.
func (e *Endpoint) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role
}

// IsOpen reports whether the Endpoint currently owns a live session.
func (e *Endpoint) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil && !e.closed
}

// StartClient drives an initiator Endpoint to the open state, dialing uri
// if necessary. It is idempotent once open, and serialized against
// concurrent callers by the endpoint lock and the reconnect cooldown.
//
// Grounded on broker.connect + broker.loadConnection: lazy, serialized
// connection (re)creation logged at LogLevelDebug/LogLevelWarn.
func (e *Endpoint) StartClient(ctx context.Context, uri string) (bool, error) {
	e.mu.Lock()
	if e.terminated {
		e.mu.Unlock()
		return false, ErrSessionClosed
	}
	if e.sess != nil && !e.closed {
		e.mu.Unlock()
		return true, nil
	}

	now := time.Now()
	if !e.lastConnectAttempt.IsZero() && now.Sub(e.lastConnectAttempt) < reconnectCooldown {
		e.mu.Unlock()
		return false, nil
	}
	e.lastConnectAttempt = now
	e.closed = false
	e.mu.Unlock()

	connectTimeout := e.cfg.Duration(PropConnectTimeout)
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout+100*time.Millisecond)
	defer cancel()

	e.log.Log(LogLevelDebug, "opening connection to peer", "uri", uri)
	sess, err := dialSession(dialCtx, uri, connectTimeout)
	if err != nil {
		e.log.Log(LogLevelWarn, "unable to open connection to peer", "uri", uri, "err", err)
		// A failed dial leaves the endpoint eligible for retry after the
		// cooldown, not terminated — only Close()/onClose() are terminal.
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		// The dialer's own HandshakeTimeout fires before dialCtx's deadline,
		// surfacing as a net.Error timeout rather than dialCtx expiring.
		var netErr net.Error
		if dialCtx.Err() == context.DeadlineExceeded || (errors.As(err, &netErr) && netErr.Timeout()) {
			return false, ErrConnectTimeout
		}
		return false, ErrTransportIO
	}
	if sess == nil {
		// Peer answered but declined the upgrade; caller falls back to
		// plain HTTP (SPEC_FULL §4.2). Not a transport failure, and not
		// terminal either.
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		return false, nil
	}

	e.mu.Lock()
	if e.terminated {
		// Close() ran while this dial was in flight: don't resurrect a
		// session on an endpoint the caller already terminated, since
		// nothing will ever close it afterward.
		e.mu.Unlock()
		if err := sess.close(); err != nil {
			e.log.Log(LogLevelWarn, "error closing session raced against Close", "err", err)
		}
		return false, ErrSessionClosed
	}
	e.sess = sess
	e.closed = false
	e.version = VERSION
	e.mu.Unlock()

	e.log.Log(LogLevelInfo, "connection opened", "uri", uri)
	go sess.readLoop(e.onBinaryMessage, e.onClose)
	return true, nil
}

// DoPost sends payload as a new request and blocks until a correlated
// reply arrives, the read timeout elapses, or the session closes. Either
// role may call DoPost on a symmetric deployment.
//
// The waiter is registered in pending, under the same critical section
// that sends the frame, before the lock is released — resolving, in favor
// of correctness, the race the distilled spec flags as an open question
// between the teacher's send-then-register ordering and a faster-than-
// expected reply (DESIGN.md).
func (e *Endpoint) DoPost(ctx context.Context, payload string) (string, error) {
	e.mu.Lock()
	if e.sess == nil || e.closed {
		e.mu.Unlock()
		return "", ErrSessionNotOpen
	}

	requestID := e.nextRequestID
	if e.nextRequestID == math.MaxInt64 {
		e.nextRequestID = 0
	} else {
		e.nextRequestID++
	}

	w := newWaiter()
	e.pending[requestID] = w

	compress := e.cfg.Bool(PropGZIPFilter)
	frame, err := Encode([]byte(payload), requestID, VERSION, compress)
	if err != nil {
		delete(e.pending, requestID)
		e.mu.Unlock()
		return "", err
	}

	if err := e.sess.writeBinary(frame); err != nil {
		delete(e.pending, requestID)
		e.mu.Unlock()
		return "", ErrTransportIO
	}
	e.mu.Unlock()

	readTimeout := e.cfg.Duration(PropReadTimeout)
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	result, err := w.await(ctx, readTimeout)
	if err == ErrReadTimeout || (err != nil && err == ctx.Err()) {
		e.mu.Lock()
		delete(e.pending, requestID)
		e.mu.Unlock()
	}
	return result, err
}

// SendResponse replies to requestID on the session this Endpoint owns. If
// the session is already closed the reply is silently dropped — the peer
// has already observed the close and cannot be waiting on it.
func (e *Endpoint) SendResponse(requestID int64, payload string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || e.closed {
		return nil
	}

	compress := e.cfg.Bool(PropGZIPFilter)
	frame, err := Encode([]byte(payload), requestID, VERSION, compress)
	if err != nil {
		return err
	}
	if err := e.sess.writeBinary(frame); err != nil {
		return ErrTransportIO
	}
	return nil
}

// Close tears the Endpoint down: best-effort, idempotent, errors from the
// underlying session close are logged and swallowed. Grounded on
// broker.stopForever/brokerCxn.die's idempotent-via-atomic-flag teardown.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
	return nil
}

func (e *Endpoint) closeLocked() {
	if e.terminated {
		return
	}
	e.terminated = true
	e.closed = true
	if e.sess != nil {
		if err := e.sess.close(); err != nil {
			e.log.Log(LogLevelWarn, "error closing peer session", "err", err)
		}
		e.sess = nil
	}
}

// onBinaryMessage is the inbound frame handler driven by the session's
// read loop. Decode errors are logged and the frame is dropped; they never
// tear down the session (SPEC_FULL §7).
func (e *Endpoint) onBinaryMessage(buf []byte) {
	e.mu.Lock()

	version, requestID, payload, err := Decode(buf)
	if err != nil {
		e.mu.Unlock()
		n := len(buf)
		if n > 20 {
			n = 20
		}
		e.log.Log(LogLevelWarn, "dropping malformed frame", "err", err, "prefix", spew.Sdump(buf[:n]))
		return
	}

	if version > VERSION {
		version = VERSION
	}
	e.version = version

	switch e.role {
	case RoleAcceptor:
		ep := e
		e.pool.Submit(func() { e.servlet.Handle(ep, requestID, payload) })
		e.mu.Unlock()
	default: // RoleInitiator
		w, ok := e.pending[requestID]
		if ok {
			delete(e.pending, requestID)
		}
		e.mu.Unlock()
		if ok {
			w.completeOK(payload)
		}
		// A missing waiter means a spurious or already-timed-out reply;
		// dropped silently per SPEC_FULL §4.2.
	}
}

// onClose is driven by the session's read loop exiting, for either a
// peer-initiated close or a local I/O error. It is the single mechanism
// that unblocks every DoPost caller still waiting on this session.
//
// Waiters complete in ascending request id order: a deliberate, observable
// ordering this module adds over the distilled spec's "every outstanding
// waiter" (the spec does not mandate an order, but fixing one makes close
// fairness (SPEC_FULL §8, property 5) simple to assert in tests).
func (e *Endpoint) onClose(status int, reason string) {
	e.mu.Lock()
	e.sess = nil
	e.closed = true
	e.terminated = true
	pending := e.pending
	e.pending = make(map[int64]*waiter)
	e.mu.Unlock()

	ids := make([]int64, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		pending[id].completeErr(ErrSessionClosed)
	}

	e.log.Log(LogLevelInfo, "peer session closed", "status", status, "reason", reason)
}
