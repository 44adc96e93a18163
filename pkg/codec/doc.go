// Package codec provides message serialization and deserialization for boarddb.
//
// The codec package implements a bounded binary frame for storing a Message
// with integrity checking. Every record page slot in the pager is sized from
// MaxEncodedSize, so a frame that does not fit is rejected instead of being
// truncated.
//
// # Frame Format
//
// Messages are serialized with the following structure:
//
//	[CRC32(4)][Version(1)][Reserved(1)][PayloadSize(2)][Payload]
//
// Fields:
//   - CRC32: 32-bit IEEE checksum over everything after the CRC field (little-endian)
//   - Version: frame format version, currently 1
//   - Reserved: always zero
//   - PayloadSize: 16-bit unsigned payload length in bytes (little-endian)
//   - Payload: Core Deterministic CBOR encoding of the Message, integer map keys
//
// The total frame size is 8 bytes (header) + len(payload) and never exceeds
// MaxEncodedSize (1024 bytes). Encoding is variable length, so storage layers
// must record the actual length of each frame.
//
// # Determinism
//
// Equal messages always encode to identical bytes: map keys are sorted, integers
// use their shortest form and an absent UpdatedAt is omitted entirely.
//
// # Usage
//
//	c := codec.NewMessageCodec()
//
//	encoded, err := c.Encode(&codec.Message{ID: 1, Title: "hello"})
//	if errors.Is(err, codec.ErrEncodingViolation) {
//	    return err // too large, reject the write
//	}
//
//	msg, err := c.Decode(encoded)
//	if errors.Is(err, codec.ErrMalformed) {
//	    return err // corrupted or incompatible frame
//	}
//
// # Thread Safety
//
// MessageCodec instances are safe for concurrent use.
package codec
