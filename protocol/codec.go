package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/robomitm/robomitm/crypto"
)

// Frame layout (all integers big-endian):
//
//	offset  size  field
//	0       3     version tag (ASCII "1.0", "A01", "B01", "L01")
//	3       4     seq
//	7       4     random
//	11      4     timestamp
//	15      2     protocol id
//	17      2     ciphertext length
//	19      N     encrypted payload
//	19+N    4     CRC-32 (IEEE) over everything preceding it
const (
	headerSize  = 19
	trailerSize = 4
)

var (
	// ErrUnknownVersion reports a frame whose version tag is not one of the
	// supported wire formats.
	ErrUnknownVersion = errors.New("protocol: unknown version tag")
	// ErrChecksum reports a frame whose CRC trailer does not match its contents.
	ErrChecksum = errors.New("protocol: frame checksum mismatch")
)

// Decoder turns a raw byte stream into Messages. It buffers partial frames
// across calls, so chunks may be split at arbitrary boundaries. One Decoder
// serves exactly one connection and is not safe for concurrent use.
type Decoder struct {
	key []byte
	buf []byte
}

// NewDecoder creates a Decoder using the per-device local key.
func NewDecoder(key []byte) *Decoder {
	return &Decoder{key: append([]byte(nil), key...)}
}

// Decode appends chunk to the pending buffer and extracts every complete
// frame. A partial frame at the tail yields no message and no error; it is
// completed by later chunks. A frame that cannot be decoded (unknown version,
// bad CRC, decrypt failure) returns the messages extracted so far together
// with the error, leaving the failing bytes pending for Drain.
func (d *Decoder) Decode(chunk []byte) ([]Message, error) {
	d.buf = append(d.buf, chunk...)
	var msgs []Message
	for {
		if len(d.buf) < headerSize {
			return msgs, nil
		}
		if _, err := crypto.ForVersion(string(d.buf[:versionTagSize])); err != nil {
			return msgs, fmt.Errorf("%w %q", ErrUnknownVersion, d.buf[:versionTagSize])
		}
		plen := int(binary.BigEndian.Uint16(d.buf[17:19]))
		total := headerSize + plen + trailerSize
		if len(d.buf) < total {
			return msgs, nil
		}
		msg, err := decodeFrame(d.buf[:total], d.key)
		if err != nil {
			return msgs, err
		}
		d.buf = d.buf[total:]
		msgs = append(msgs, *msg)
	}
}

// Drain returns all pending undecoded bytes in arrival order and resets the
// buffer. The relay uses it to forward raw traffic after a decode failure.
func (d *Decoder) Drain() []byte {
	raw := d.buf
	d.buf = nil
	return raw
}

// decodeFrame verifies and decrypts one complete frame.
func decodeFrame(frame, key []byte) (*Message, error) {
	body := frame[:len(frame)-trailerSize]
	stored := binary.BigEndian.Uint32(frame[len(frame)-trailerSize:])
	if crc32.ChecksumIEEE(body) != stored {
		return nil, ErrChecksum
	}

	msg := &Message{
		Version:   Version(frame[:versionTagSize]),
		Seq:       binary.BigEndian.Uint32(frame[3:7]),
		Random:    binary.BigEndian.Uint32(frame[7:11]),
		Timestamp: binary.BigEndian.Uint32(frame[11:15]),
		Protocol:  binary.BigEndian.Uint16(frame[15:17]),
	}

	cipher, err := crypto.ForVersion(string(msg.Version))
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownVersion, msg.Version)
	}
	if ct := body[headerSize:]; len(ct) > 0 {
		hdr := crypto.Header{Seq: msg.Seq, Random: msg.Random, Timestamp: msg.Timestamp}
		payload, err := cipher.Decrypt(ct, key, hdr)
		if err != nil {
			return nil, fmt.Errorf("protocol: decrypt %s frame: %w", msg.Version, err)
		}
		msg.Payload = payload
	}
	return msg, nil
}

// Encode produces the exact wire bytes of msg, selecting the payload cipher
// by the message's own version so forged replies stay compatible with
// whichever format the conversation uses.
func Encode(msg Message, key []byte) ([]byte, error) {
	if len(msg.Version) != versionTagSize {
		return nil, fmt.Errorf("%w %q", ErrUnknownVersion, msg.Version)
	}
	cipher, err := crypto.ForVersion(string(msg.Version))
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownVersion, msg.Version)
	}
	var body []byte
	if len(msg.Payload) > 0 {
		hdr := crypto.Header{Seq: msg.Seq, Random: msg.Random, Timestamp: msg.Timestamp}
		body, err = cipher.Encrypt(msg.Payload, key, hdr)
		if err != nil {
			return nil, fmt.Errorf("protocol: encrypt %s frame: %w", msg.Version, err)
		}
	}
	if len(body) > math.MaxUint16 {
		return nil, fmt.Errorf("protocol: payload too large (%d bytes encrypted)", len(body))
	}

	frame := make([]byte, headerSize+len(body)+trailerSize)
	copy(frame[:versionTagSize], msg.Version)
	binary.BigEndian.PutUint32(frame[3:7], msg.Seq)
	binary.BigEndian.PutUint32(frame[7:11], msg.Random)
	binary.BigEndian.PutUint32(frame[11:15], msg.Timestamp)
	binary.BigEndian.PutUint16(frame[15:17], msg.Protocol)
	binary.BigEndian.PutUint16(frame[17:19], uint16(len(body)))
	copy(frame[headerSize:], body)
	crc := crc32.ChecksumIEEE(frame[:headerSize+len(body)])
	binary.BigEndian.PutUint32(frame[headerSize+len(body):], crc)
	return frame, nil
}
