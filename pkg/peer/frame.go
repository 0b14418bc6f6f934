package peer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// Protocol framing constants (SPEC_FULL §3/§6). These are wire-format
// invariants, not configuration: changing them breaks compatibility with
// any peer still running the old values.
const (
	// VERSION is the only frame version this package understands.
	VERSION uint32 = 1

	// MaxMessageSize bounds the total size (prefix + body) of one frame,
	// enforced by Encode and, on receive, by each session's read limit.
	// Decode also rejects a compressed frame whose declared uncompressed
	// length exceeds it.
	MaxMessageSize = 192 * 1024 * 1024

	// MinCompressSize is the inclusive lower bound on payload length for
	// compression to be applied when enabled.
	MinCompressSize = 256

	// FlagCompressed marks a frame's body as gzip-compressed.
	FlagCompressed uint32 = 0x1

	framePrefixSize = 20
)

// Encode produces the wire bytes for one frame: the 20-byte big-endian
// prefix (SPEC_FULL §3) followed by payload, gzip-compressed when
// compressionEnabled is set and len(payload) >= MinCompressSize.
//
// Grounded on brokerCxn.writeRequest's length-prefix-then-body framing in
// the teacher, generalized to this package's fixed 20-byte prefix.
func Encode(payload []byte, requestID int64, version uint32, compressionEnabled bool) ([]byte, error) {
	var flags uint32
	body := payload
	uncompressedLen := len(payload)

	if compressionEnabled && len(payload) >= MinCompressSize {
		compressed, err := gzipCompress(payload)
		if err != nil {
			return nil, fmt.Errorf("peer: gzip compress: %w", err)
		}
		body = compressed
		flags |= FlagCompressed
	}

	total := framePrefixSize + len(body)
	if total > MaxMessageSize {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, total)
	binary.BigEndian.PutUint32(frame[0:4], version)
	binary.BigEndian.PutUint64(frame[4:12], uint64(requestID))
	binary.BigEndian.PutUint32(frame[12:16], flags)
	binary.BigEndian.PutUint32(frame[16:20], uint32(uncompressedLen))
	copy(frame[framePrefixSize:], body)
	return frame, nil
}

// Decode parses the wire bytes produced by Encode, returning the sender's
// declared version, the echoed request id, and the payload as a validated
// UTF-8 string.
func Decode(frame []byte) (version uint32, requestID int64, payload string, err error) {
	if len(frame) < framePrefixSize {
		return 0, 0, "", ErrMalformedPrefix
	}

	version = binary.BigEndian.Uint32(frame[0:4])
	requestID = int64(binary.BigEndian.Uint64(frame[4:12]))
	flags := binary.BigEndian.Uint32(frame[12:16])
	uncompressedLen := binary.BigEndian.Uint32(frame[16:20])
	body := frame[framePrefixSize:]

	var raw []byte
	if flags&FlagCompressed != 0 {
		raw, err = gzipDecompress(body, int(uncompressedLen))
		if err != nil {
			return 0, 0, "", err
		}
	} else {
		raw = body
	}

	if !utf8.Valid(raw) {
		return 0, 0, "", ErrInvalidUTF8
	}
	return version, requestID, string(raw), nil
}

func gzipCompress(payload []byte) ([]byte, error) {
	var buf growBuffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// gzipDecompress decompresses src into a buffer sized exactly
// uncompressedLen, failing with ErrTruncatedCompressedBody if the stream
// ends early (SPEC_FULL §4.1 step 3).
//
// uncompressedLen comes straight off the wire from an untrusted peer, so it
// is bounds-checked against MaxMessageSize before it ever sizes an
// allocation: otherwise a small compressed frame could declare a length
// near math.MaxUint32 and force a multi-gigabyte alloc per message.
func gzipDecompress(src []byte, uncompressedLen int) ([]byte, error) {
	if uncompressedLen < 0 || uncompressedLen > MaxMessageSize {
		return nil, ErrFrameTooLarge
	}

	zr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("peer: gzip reader: %w", err)
	}
	defer zr.Close()

	out := make([]byte, uncompressedLen)
	n, err := io.ReadFull(zr, out)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			_ = n
			return nil, ErrTruncatedCompressedBody
		}
		return nil, fmt.Errorf("peer: gzip decompress: %w", err)
	}
	return out, nil
}

// growBuffer is a tiny io.Writer sink; avoids pulling in bytes.Buffer just
// to satisfy gzip.Writer's io.Writer requirement with one extra alloc.
type growBuffer struct{ b []byte }

func (g *growBuffer) Write(p []byte) (int, error) {
	g.b = append(g.b, p...)
	return len(p), nil
}
