package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// chunkReader returns at most n bytes per Read call
type chunkReader struct {
	data []byte
	n    int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	size := c.n
	if size > len(p) {
		size = len(p)
	}
	if size > len(c.data) {
		size = len(c.data)
	}
	copy(p, c.data[:size])
	c.data = c.data[size:]
	return size, nil
}

func TestReadPacket(t *testing.T) {
	stream := append(BuildStepperMoveTo(1, 77), BuildStepperInfoRequest()...)
	r := &chunkReader{data: stream, n: 3}

	first, err := ReadPacket(r, 64)
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if len(first) != StepperMoveToSize {
		t.Errorf("first packet = %d bytes, want %d", len(first), StepperMoveToSize)
	}

	second, err := ReadPacket(r, 64)
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if !bytes.Equal(second, BuildStepperInfoRequest()) {
		t.Errorf("second packet = % x", second)
	}

	if _, err := ReadPacket(r, 64); !errors.Is(err, io.EOF) {
		t.Errorf("ReadPacket() at end error = %v, want io.EOF", err)
	}
}

func TestReadPacket_BadLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"length below header", []byte{2, 0, 0, 0}},
		{"length above max", []byte{0xFF, 0x00, 5, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPacket(bytes.NewReader(tt.data), 64)
			if !errors.Is(err, ErrBadLength) {
				t.Errorf("ReadPacket() error = %v, want ErrBadLength", err)
			}
		})
	}
}

func TestReadStepperInfoReply_ContinuesUntilTerminator(t *testing.T) {
	pkt, err := BuildStepperInfoResponse(sampleSteppers())
	if err != nil {
		t.Fatalf("BuildStepperInfoResponse() error = %v", err)
	}

	buf := make([]byte, MaxInfoResponseSize)
	n, err := ReadStepperInfoReply(&chunkReader{data: pkt, n: 5}, buf)
	if err != nil {
		t.Fatalf("ReadStepperInfoReply() error = %v", err)
	}
	if n != len(pkt) {
		t.Errorf("ReadStepperInfoReply() = %d bytes, want %d", n, len(pkt))
	}
}

func TestReadStepperInfoReply_LengthFieldOverstated(t *testing.T) {
	pkt, err := BuildStepperInfoResponse(sampleSteppers()[:1])
	if err != nil {
		t.Fatalf("BuildStepperInfoResponse() error = %v", err)
	}
	pkt[0] = byte(len(pkt) + 10)

	// the stream stays open after the reply; reading past it would block
	r := &chunkReader{data: append(pkt, 0xEE, 0xEE), n: 3}
	buf := make([]byte, MaxInfoResponseSize)
	n, err := ReadStepperInfoReply(r, buf)
	if err != nil {
		t.Fatalf("ReadStepperInfoReply() error = %v", err)
	}
	if n != len(pkt) {
		t.Errorf("ReadStepperInfoReply() = %d bytes, want %d", n, len(pkt))
	}
}

func TestReadStepperInfoReply_LengthFieldBounds(t *testing.T) {
	pkt, _ := BuildStepperInfoResponse(sampleSteppers())
	// the field claims only the first record although the chain continues
	limit := HeaderSize + StepperInfoRecordSize
	pkt[0] = byte(limit)

	buf := make([]byte, MaxInfoResponseSize)
	n, err := ReadStepperInfoReply(&chunkReader{data: pkt, n: 5}, buf)
	if err != nil {
		t.Fatalf("ReadStepperInfoReply() error = %v", err)
	}
	if n != limit {
		t.Errorf("ReadStepperInfoReply() = %d bytes, want %d", n, limit)
	}
}

func TestReadStepperInfoReply_BoundedByBuffer(t *testing.T) {
	// length field promises far more than the buffer holds
	data := make([]byte, 64)
	data[0], data[1], data[2] = 0xFF, 0xFF, byte(OpStepperInfoResponse)

	buf := make([]byte, 16)
	n, err := ReadStepperInfoReply(bytes.NewReader(data), buf)
	if err != nil {
		t.Fatalf("ReadStepperInfoReply() error = %v", err)
	}
	if n != len(buf) {
		t.Errorf("ReadStepperInfoReply() = %d bytes, want %d", n, len(buf))
	}
}

func TestReadStepperInfoReply_OtherOpcode(t *testing.T) {
	r := &chunkReader{data: append(BuildConnectionApproved(), 1, 2, 3), n: 4}
	buf := make([]byte, MaxInfoResponseSize)
	n, err := ReadStepperInfoReply(r, buf)
	if err != nil {
		t.Fatalf("ReadStepperInfoReply() error = %v", err)
	}
	if n != HeaderSize {
		t.Errorf("ReadStepperInfoReply() = %d bytes, want %d", n, HeaderSize)
	}
}

func TestReadStepperInfoReply_EarlyEOF(t *testing.T) {
	pkt, _ := BuildStepperInfoResponse(sampleSteppers())

	buf := make([]byte, MaxInfoResponseSize)
	n, err := ReadStepperInfoReply(bytes.NewReader(pkt[:20]), buf)
	if !errors.Is(err, io.EOF) {
		t.Errorf("ReadStepperInfoReply() error = %v, want io.EOF", err)
	}
	if n != 20 {
		t.Errorf("ReadStepperInfoReply() = %d bytes, want 20", n)
	}
}

func TestReadReply_ShortStream(t *testing.T) {
	buf := make([]byte, MaxHandshakeResponseSize)
	_, err := ReadReply(bytes.NewReader([]byte{4, 0}), buf)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadReply() error = %v, want io.ErrUnexpectedEOF", err)
	}
}
