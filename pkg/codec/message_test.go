package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }

func TestMessageCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec := NewMessageCodec()

	testCases := []struct {
		name string
		msg  *Message
	}{
		{
			name: "simple message",
			msg:  &Message{ID: 1, Title: "A", Body: "B", AttachmentURL: "C", CreatedAt: 42},
		},
		{
			name: "empty content",
			msg:  &Message{ID: 7, CreatedAt: 1},
		},
		{
			name: "updated message",
			msg:  &Message{ID: 3, Title: "t", Body: "b", CreatedAt: 100, UpdatedAt: u64(200)},
		},
		{
			name: "max id",
			msg:  &Message{ID: ^uint64(0), Title: "last", CreatedAt: ^uint64(0) - 1, UpdatedAt: u64(^uint64(0))},
		},
		{
			name: "unicode data",
			msg:  &Message{ID: 9, Title: "🔑 unicode", Body: "🎯 émojis", AttachmentURL: "https://example.com/ü", CreatedAt: 5},
		},
		{
			name: "large body within bound",
			msg:  &Message{ID: 10, Body: strings.Repeat("x", 900), CreatedAt: 5},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := codec.Encode(tc.msg)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(encoded), MaxEncodedSize)

			size, err := codec.Size(tc.msg)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), size)

			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.msg, decoded)
		})
	}
}

func TestMessageCodec_Deterministic(t *testing.T) {
	codec := NewMessageCodec()
	msg := &Message{ID: 12, Title: "same", Body: "bytes", CreatedAt: 99, UpdatedAt: u64(100)}

	first, err := codec.Encode(msg)
	require.NoError(t, err)
	second, err := codec.Encode(msg.Clone())
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "equal messages must encode identically")
}

func TestMessageCodec_EncodingViolation(t *testing.T) {
	codec := NewMessageCodec()

	t.Run("oversized body", func(t *testing.T) {
		msg := &Message{ID: 1, Body: strings.Repeat("b", MaxEncodedSize), CreatedAt: 1}
		_, err := codec.Encode(msg)
		assert.True(t, errors.Is(err, ErrEncodingViolation))
	})

	t.Run("sum of fields over bound", func(t *testing.T) {
		msg := &Message{
			ID:            1,
			Title:         strings.Repeat("t", 400),
			Body:          strings.Repeat("b", 400),
			AttachmentURL: strings.Repeat("u", 400),
			CreatedAt:     1,
		}
		_, err := codec.Encode(msg)
		assert.ErrorIs(t, err, ErrEncodingViolation)
	})

	t.Run("updated before created", func(t *testing.T) {
		msg := &Message{ID: 1, CreatedAt: 10, UpdatedAt: u64(9)}
		_, err := codec.Encode(msg)
		assert.ErrorIs(t, err, ErrEncodingViolation)
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		for _, msg := range []*Message{
			{ID: 1, Title: "\xff\xfe", CreatedAt: 1},
			{ID: 1, Body: "ok\xc3", CreatedAt: 1},
			{ID: 1, AttachmentURL: "\x80", CreatedAt: 1},
		} {
			_, err := codec.Encode(msg)
			assert.ErrorIs(t, err, ErrEncodingViolation)
			_, err = codec.Size(msg)
			assert.ErrorIs(t, err, ErrEncodingViolation)
		}
	})

	t.Run("nil message", func(t *testing.T) {
		_, err := codec.Encode(nil)
		assert.ErrorIs(t, err, ErrEncodingViolation)
	})
}

func TestMessageCodec_DecodeErrors(t *testing.T) {
	codec := NewMessageCodec()
	valid, err := codec.Encode(&Message{ID: 1, Title: "test title", Body: "test body", CreatedAt: 1})
	require.NoError(t, err)

	corrupt := func(mutate func([]byte) []byte) []byte {
		c := append([]byte{}, valid...)
		return mutate(c)
	}

	// frame builds a well-formed frame around m without validating it.
	frame := func(m *Message) []byte {
		payload, err := codec.enc.Marshal(m)
		require.NoError(t, err)
		buf := make([]byte, HeaderSize+len(payload))
		buf[4] = FormatVersion
		binary.LittleEndian.PutUint16(buf[6:], uint16(len(payload)))
		copy(buf[HeaderSize:], payload)
		binary.LittleEndian.PutUint32(buf[0:], crc32.ChecksumIEEE(buf[4:]))
		return buf
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short header", valid[:HeaderSize-1]},
		{"truncated payload", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00)},
		{"corrupted crc", corrupt(func(b []byte) []byte { b[0] ^= 0xFF; return b })},
		{"corrupted payload", corrupt(func(b []byte) []byte { b[HeaderSize+2] ^= 0xFF; return b })},
		{"unknown version", corrupt(func(b []byte) []byte { b[4] = 9; return b })},
		{"updated before created", frame(&Message{ID: 1, CreatedAt: 10, UpdatedAt: u64(9)})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Decode(tc.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMessage_Clone(t *testing.T) {
	orig := &Message{ID: 1, Title: "a", CreatedAt: 1, UpdatedAt: u64(2)}
	c := orig.Clone()
	*c.UpdatedAt = 5
	c.Title = "b"

	assert.Equal(t, uint64(2), *orig.UpdatedAt)
	assert.Equal(t, "a", orig.Title)
}
