package peer

// Servlet is the upward collaborator an acceptor Endpoint dispatches
// decoded requests to (SPEC_FULL §6). It has no teacher analog — Kafka has
// no inbound-request callback of this shape — so it is a direct, literal
// translation of the distilled spec's description rather than something
// grounded on existing code.
//
// Handle runs on the endpoint's Dispatcher, never on the endpoint's own reader
// goroutine. It is expected to eventually call ep.SendResponse(requestID,
// ...) on the same Endpoint; there is no ordering requirement between the
// arrival order of requests and the order responses are sent.
type Servlet interface {
	Handle(ep *Endpoint, requestID int64, payload string)
}

// ServletFunc adapts a plain function to Servlet.
type ServletFunc func(ep *Endpoint, requestID int64, payload string)

func (f ServletFunc) Handle(ep *Endpoint, requestID int64, payload string) {
	f(ep, requestID, payload)
}
