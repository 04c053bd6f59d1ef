package zabbix

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Magic opens every sender-protocol frame.
var Magic = [5]byte{'Z', 'B', 'X', 'D', 0x01}

// Frame layout: magic(5) | body length, little-endian uint32 (4) | reserved zero (4) | body.
const (
	magicLength       = len(Magic)
	lengthBlockLength = 8
	headerLength      = magicLength + lengthBlockLength

	// maxBodyLength bounds the allocation for an acknowledgement body.
	maxBodyLength = 128 * 1024 * 1024
)

// Encode serializes payload as compact JSON and prepends the frame header.
func Encode(payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	frame := make([]byte, headerLength, headerLength+len(body))
	copy(frame, Magic[:])
	binary.LittleEndian.PutUint32(frame[magicLength:magicLength+4], uint32(len(body)))
	return append(frame, body...), nil
}

// Decode validates a frame given as its three parts and returns the JSON body.
// Bytes after the declared length are ignored.
func Decode(header, lengthBlock, body []byte) (json.RawMessage, error) {
	if !bytes.Equal(header, Magic[:]) {
		return nil, &ProtocolError{Op: "decode header", Err: fmt.Errorf("%w: got %q", ErrBadMagic, header)}
	}
	if len(lengthBlock) < 4 {
		return nil, &ProtocolError{Op: "decode length", Err: fmt.Errorf("%w: length block has %d bytes", ErrShortRead, len(lengthBlock))}
	}
	declared := binary.LittleEndian.Uint32(lengthBlock[:4])
	if uint64(len(body)) < uint64(declared) {
		return nil, &ProtocolError{Op: "decode body", Err: fmt.Errorf("%w: declared %d bytes, have %d", ErrShortRead, declared, len(body))}
	}
	raw := body[:declared]
	if !json.Valid(raw) {
		return nil, &ProtocolError{Op: "decode body", Err: fmt.Errorf("body is not valid JSON")}
	}
	return json.RawMessage(raw), nil
}

// ReadFrame reads one frame from r: the magic, the length block, then exactly
// the declared number of body bytes. A premature EOF is a short read.
func ReadFrame(r io.Reader) (json.RawMessage, error) {
	header := make([]byte, magicLength)
	if err := readFull(r, header, "read header"); err != nil {
		return nil, err
	}
	if !bytes.Equal(header, Magic[:]) {
		return nil, &ProtocolError{Op: "read header", Err: fmt.Errorf("%w: got %q", ErrBadMagic, header)}
	}

	lengthBlock := make([]byte, lengthBlockLength)
	if err := readFull(r, lengthBlock, "read length"); err != nil {
		return nil, err
	}
	declared := binary.LittleEndian.Uint32(lengthBlock[:4])
	if declared > maxBodyLength {
		return nil, &ProtocolError{Op: "read length", Err: fmt.Errorf("body length %d exceeds maximum %d", declared, maxBodyLength)}
	}

	body := make([]byte, declared)
	if err := readFull(r, body, "read body"); err != nil {
		return nil, err
	}
	return Decode(header, lengthBlock, body)
}

func readFull(r io.Reader, buf []byte, op string) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return &ProtocolError{Op: op, Err: fmt.Errorf("%w: want %d bytes: %v", ErrShortRead, len(buf), err)}
	default:
		return err
	}
}
