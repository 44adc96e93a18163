package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

const (
	// MaxEncodedSize is the upper bound on an encoded message frame.
	MaxEncodedSize = 1024

	// HeaderSize is CRC32(4) + Version(1) + Reserved(1) + PayloadSize(2).
	HeaderSize = 8

	// MaxPayloadSize is the largest CBOR payload that fits the frame.
	MaxPayloadSize = MaxEncodedSize - HeaderSize

	// FormatVersion is written into every frame.
	FormatVersion byte = 1
)

var (
	// ErrEncodingViolation is returned when a message cannot be represented
	// within MaxEncodedSize. Callers must reject the write.
	ErrEncodingViolation = errors.New("encoding violation")

	// ErrMalformed is returned when bytes were not produced by a compatible Encode.
	ErrMalformed = errors.New("malformed message frame")
)

// Message is the single entity kept by the store.
type Message struct {
	ID            uint64  `cbor:"1,keyasint" json:"id"`
	Title         string  `cbor:"2,keyasint" json:"title"`
	Body          string  `cbor:"3,keyasint" json:"body"`
	AttachmentURL string  `cbor:"4,keyasint" json:"attachment_url"`
	CreatedAt     uint64  `cbor:"5,keyasint" json:"created_at"`
	UpdatedAt     *uint64 `cbor:"6,keyasint,omitempty" json:"updated_at,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	c := *m
	if m.UpdatedAt != nil {
		u := *m.UpdatedAt
		c.UpdatedAt = &u
	}
	return &c
}

// Validate checks that text fields are valid UTF-8, which CBOR text strings
// require, and the timestamp invariant.
func (m *Message) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"title", m.Title},
		{"body", m.Body},
		{"attachment_url", m.AttachmentURL},
	} {
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: %s is not valid utf-8", ErrEncodingViolation, f.name)
		}
	}
	if m.UpdatedAt != nil && *m.UpdatedAt < m.CreatedAt {
		return fmt.Errorf("%w: updated_at %d precedes created_at %d", ErrEncodingViolation, *m.UpdatedAt, m.CreatedAt)
	}
	return nil
}

// MessageCodec handles serialization and deserialization of messages
type MessageCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewMessageCodec creates a new message codec instance
func NewMessageCodec() *MessageCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid cbor encoding options: %v", err))
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: invalid cbor decoding options: %v", err))
	}
	return &MessageCodec{enc: enc, dec: dec}
}

// Encode serializes a message into a bounded binary frame
// Format: [CRC32(4)][Version(1)][Reserved(1)][PayloadSize(2)][CBOR payload]
func (c *MessageCodec) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncodingViolation)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	payload, err := c.enc.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingViolation, err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: message %d encodes to %d bytes, max %d",
			ErrEncodingViolation, m.ID, HeaderSize+len(payload), MaxEncodedSize)
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[4] = FormatVersion
	binary.LittleEndian.PutUint16(buf[6:], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	binary.LittleEndian.PutUint32(buf[0:], crc32.ChecksumIEEE(buf[4:]))

	return buf, nil
}

// Decode deserializes a frame produced by Encode
func (c *MessageCodec) Decode(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: data too short for header", ErrMalformed)
	}

	sum := binary.LittleEndian.Uint32(data[0:4])
	version := data[4]
	size := int(binary.LittleEndian.Uint16(data[6:8]))

	if version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, version)
	}
	if len(data) != HeaderSize+size {
		return nil, fmt.Errorf("%w: payload size mismatch: %d != %d", ErrMalformed, len(data)-HeaderSize, size)
	}
	if got := crc32.ChecksumIEEE(data[4:]); got != sum {
		return nil, fmt.Errorf("%w: CRC32 mismatch: %d != %d", ErrMalformed, sum, got)
	}

	var m Message
	if err := c.dec.Unmarshal(data[HeaderSize:], &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &m, nil
}

// Size returns the encoded frame size of m.
func (c *MessageCodec) Size(m *Message) (int, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	payload, err := c.enc.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEncodingViolation, err)
	}
	return HeaderSize + len(payload), nil
}
