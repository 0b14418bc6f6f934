package peer

import "errors"

// Sentinel errors surfaced across the Endpoint boundary. Decode-time errors
// (ErrInvalidUTF8, ErrTruncatedCompressedBody, ErrMalformedPrefix) are never
// returned to a caller of DoPost/SendResponse/StartClient directly; they are
// logged and the offending frame is dropped (see endpoint.go onBinaryMessage).
var (
	ErrSessionNotOpen          = errors.New("peer: session not open")
	ErrFrameTooLarge           = errors.New("peer: frame exceeds MaxMessageSize")
	ErrInvalidUTF8             = errors.New("peer: payload is not valid utf-8")
	ErrTruncatedCompressedBody = errors.New("peer: compressed body truncated before uncompressedLen reached")
	ErrMalformedPrefix         = errors.New("peer: frame shorter than the 20-byte prefix")
	ErrConnectTimeout          = errors.New("peer: connect timed out")
	ErrReadTimeout             = errors.New("peer: read timed out waiting for response")
	ErrSessionClosed           = errors.New("peer: session closed")
	ErrTransportIO             = errors.New("peer: transport i/o error")
)
