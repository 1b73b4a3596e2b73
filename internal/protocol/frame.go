package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ReadPacket reads exactly one length-framed control packet from r.
//
// The header is read first; the length field then decides how many more
// bytes belong to the packet. Used on the device side where every inbound
// packet is fixed-size.
func ReadPacket(r io.Reader, maxSize int) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := int(binary.LittleEndian.Uint16(header[0:2]))
	if length < HeaderSize || length > maxSize {
		return header, fmt.Errorf("packet length %d outside [%d, %d]: %w", length, HeaderSize, maxSize, ErrBadLength)
	}

	pkt := make([]byte, length)
	copy(pkt, header)
	if _, err := io.ReadFull(r, pkt[HeaderSize:]); err != nil {
		return nil, fmt.Errorf("failed to read packet body: %w", err)
	}

	return pkt, nil
}

// ReadReply reads a device reply into buf, returning once at least a full
// header has arrived. It may return more bytes than the header announces if
// they were already buffered; it never reads more than len(buf).
func ReadReply(r io.Reader, buf []byte) (int, error) {
	return io.ReadAtLeast(r, buf, HeaderSize)
}

// ReadStepperInfoReply reads a telemetry reply into buf. After the first
// read it keeps reading only while the has_next record chain is still open,
// stopping at the header's length field or at len(buf), whichever is smaller.
// The length field is an upper bound only: a terminated chain ends the read
// even when the field announces more bytes. Replies with another opcode are
// returned after the first read.
func ReadStepperInfoReply(r io.Reader, buf []byte) (int, error) {
	n, err := ReadReply(r, buf)
	if err != nil {
		return n, err
	}

	h, err := ParseHeader(buf[:n])
	if err != nil || h.Opcode != OpStepperInfoResponse {
		return n, nil
	}

	limit := len(buf)
	if l := int(h.Length); l >= HeaderSize && l < limit {
		limit = l
	}

	for n < limit && chainOpen(buf[:n]) {
		m, err := r.Read(buf[n:limit])
		n += m
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

// chainOpen reports whether data ends before the record chain terminates
func chainOpen(data []byte) bool {
	_, _, err := ParseStepperInfoRecords(data)
	return errors.Is(err, ErrTruncated)
}
