package peer

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// S1 from SPEC_FULL §8: a 2-byte payload, no compression, literal wire bytes.
func TestEncode_S1_SmallPayloadNoCompression(t *testing.T) {
	got, err := Encode([]byte("{}"), 7, 1, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{
		0x00, 0x00, 0x00, 0x01, // version
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x07, // request id
		0x00, 0x00, 0x00, 0x00, // flags
		0x00, 0x00, 0x00, 0x02, // uncompressed len
		0x7B, 0x7D, // "{}"
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame mismatch\ngot:  % x\nwant: % x", got, want)
	}
}

// S2: exactly 255 bytes, below MinCompressSize, stays uncompressed even with
// compression enabled.
func TestEncode_S2_JustBelowCompressionThreshold(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 255)
	frame, err := Encode(payload, 1, 1, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	flags := frame[12:16]
	if flags[3]&byte(FlagCompressed) != 0 {
		t.Fatalf("expected FlagCompressed unset for 255-byte payload, flags=% x", flags)
	}
	if !bytes.Equal(frame[framePrefixSize:], payload) {
		t.Fatalf("body should be verbatim for an uncompressed frame")
	}
}

// S3: exactly 256 bytes, at MinCompressSize, gets compressed and round-trips.
func TestEncode_S3_AtCompressionThreshold(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 256)
	frame, err := Encode(payload, 1, 1, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	flags := frame[12:16]
	if flags[3]&byte(FlagCompressed) == 0 {
		t.Fatalf("expected FlagCompressed set for 256-byte payload")
	}

	_, _, decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != string(payload) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d bytes", len(decoded), len(payload))
	}
}

// Property 1: codec round-trip for a range of sizes straddling the
// compression threshold, with compression both enabled and disabled.
func TestCodecRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 255, 256, 257, 1024, 64 * 1024}
	for _, size := range sizes {
		for _, compress := range []bool{false, true} {
			payload := []byte(strings.Repeat("x", size))
			frame, err := Encode(payload, 42, VERSION, compress)
			if err != nil {
				t.Fatalf("size=%d compress=%v: Encode: %v", size, compress, err)
			}
			version, requestID, decoded, err := Decode(frame)
			if err != nil {
				t.Fatalf("size=%d compress=%v: Decode: %v", size, compress, err)
			}
			if requestID != 42 {
				t.Fatalf("size=%d: requestID = %d, want 42", size, requestID)
			}
			if version != VERSION {
				t.Fatalf("size=%d: version = %d, want %d", size, version, VERSION)
			}
			if decoded != string(payload) {
				t.Fatalf("size=%d compress=%v: payload mismatch (%d != %d bytes)", size, compress, len(decoded), len(payload))
			}
		}
	}
}

// Property 2: the compression threshold is exact and exclusive to the
// compression-enabled path.
func TestCompressionThreshold(t *testing.T) {
	below := bytes.Repeat([]byte{'a'}, MinCompressSize-1)
	at := bytes.Repeat([]byte{'a'}, MinCompressSize)

	cases := []struct {
		name       string
		payload    []byte
		compress   bool
		wantCompre bool
	}{
		{"below threshold, compression on", below, true, false},
		{"below threshold, compression off", below, false, false},
		{"at threshold, compression on", at, true, true},
		{"at threshold, compression off", at, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := Encode(tc.payload, 1, VERSION, tc.compress)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			flags := frame[12:16]
			gotCompressed := flags[3]&byte(FlagCompressed) != 0
			if gotCompressed != tc.wantCompre {
				t.Fatalf("compressed = %v, want %v", gotCompressed, tc.wantCompre)
			}
		})
	}
}

// Property 3 / S7: an oversized, uncompressed payload fails with
// ErrFrameTooLarge and never allocates the full frame.
func TestEncode_FrameTooLarge(t *testing.T) {
	payload := make([]byte, MaxMessageSize-framePrefixSize+1)
	_, err := Encode(payload, 1, VERSION, false)
	if err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecode_MalformedPrefix(t *testing.T) {
	_, _, _, err := Decode(make([]byte, 19))
	if err != ErrMalformedPrefix {
		t.Fatalf("err = %v, want ErrMalformedPrefix", err)
	}
}

func TestDecode_TruncatedCompressedBody(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 1024)
	frame, err := Encode(payload, 1, VERSION, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	truncated := frame[:len(frame)-10]
	_, _, _, err = Decode(truncated)
	if err != ErrTruncatedCompressedBody {
		t.Fatalf("err = %v, want ErrTruncatedCompressedBody", err)
	}
}

// A peer declaring an uncompressedLen near the top of the uint32 range must
// not force a multi-gigabyte allocation; Decode should reject it outright.
func TestDecode_OversizedUncompressedLenRejected(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 1024)
	frame, err := Encode(payload, 1, VERSION, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Overwrite the declared uncompressed length (bytes 16:20) with a value
	// far beyond MaxMessageSize, leaving the compressed body untouched.
	binary.BigEndian.PutUint32(frame[16:20], 0xFFFFFFF0)

	_, _, _, err = Decode(frame)
	if err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	invalid := []byte{0xff, 0xfe, 0xfd}
	frame, err := Encode(invalid, 1, VERSION, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, _, _, err = Decode(frame)
	if err != ErrInvalidUTF8 {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
}

func TestDecode_Fields(t *testing.T) {
	frame, err := Encode([]byte("hello"), 99, VERSION, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	version, requestID, payload, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	type decoded struct {
		Version   uint32
		RequestID int64
		Payload   string
	}
	got := decoded{version, requestID, payload}
	want := decoded{VERSION, 99, "hello"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded frame mismatch (-want +got):\n%s", diff)
	}
}
