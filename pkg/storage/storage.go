package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/boarddb/pkg/codec"
	"github.com/ssargent/boarddb/pkg/store"
)

var (
	messagePrefix = []byte("m/")
	counterKey    = []byte("meta/counter")
	fileIDKey     = []byte("meta/file_id")
)

// Config holds configuration for the pebble-backed record store
type Config struct {
	Path   string
	NoSync bool
	Logger *zerolog.Logger
}

// PebbleStore keeps each message under its own key in a pebble database.
// Message keys are "m/" followed by the big-endian id so pebble's key order
// is id order.
type PebbleStore struct {
	db     *pebble.DB
	codec  *codec.MessageCodec
	opts   *pebble.WriteOptions
	fileID ksuid.KSUID
	path   string
	count  int
	logger zerolog.Logger
	mutex  sync.Mutex
	closed bool
}

// NewPebbleStore opens (or creates) the database at config.Path
func NewPebbleStore(config Config) (*PebbleStore, error) {
	db, err := pebble.Open(config.Path, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "pebble_store").Logger()
	}

	s := &PebbleStore{
		db:     db,
		codec:  codec.NewMessageCodec(),
		opts:   pebble.Sync,
		path:   config.Path,
		logger: logger,
	}
	if config.NoSync {
		s.opts = pebble.NoSync
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", config.Path).
		Str("file_id", s.fileID.String()).
		Int("records", s.count).
		Msg("opened pebble store")

	return s, nil
}

// load reads or assigns the file id and counts stored messages.
func (s *PebbleStore) load() error {
	data, closer, err := s.db.Get(fileIDKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		s.fileID = ksuid.New()
		if err := s.db.Set(fileIDKey, s.fileID.Bytes(), pebble.Sync); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		id, parseErr := ksuid.FromBytes(data)
		closer.Close()
		if parseErr != nil {
			return fmt.Errorf("%w: file id: %v", store.ErrCorruption, parseErr)
		}
		s.fileID = id
	}

	iter, err := s.db.NewIter(messageBounds(0))
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		s.count++
	}
	return iter.Close()
}

func messageKey(id uint64) []byte {
	key := make([]byte, len(messagePrefix)+8)
	copy(key, messagePrefix)
	binary.BigEndian.PutUint64(key[len(messagePrefix):], id)
	return key
}

// messageBounds covers every message key with id >= from.
func messageBounds(from uint64) *pebble.IterOptions {
	upper := append([]byte(nil), messagePrefix...)
	upper[len(upper)-1]++
	return &pebble.IterOptions{
		LowerBound: messageKey(from),
		UpperBound: upper,
	}
}

func (s *PebbleStore) getInternal(id uint64) (*codec.Message, error) {
	data, closer, err := s.db.Get(messageKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, store.ErrKeyNotFound
	}
	if err != nil {
		return nil, &store.StorageError{Op: "read", ID: id, Err: err}
	}
	defer closer.Close()

	return decodeMessage(s.codec, id, data)
}

// decodeMessage decodes the value stored under id and checks that it belongs there.
func decodeMessage(c *codec.MessageCodec, id uint64, data []byte) (*codec.Message, error) {
	msg, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: id=%d: %v", store.ErrCorruption, id, err)
	}
	if msg.ID != id {
		return nil, fmt.Errorf("%w: key for id=%d holds id=%d", store.ErrCorruption, id, msg.ID)
	}
	return msg, nil
}

// Get retrieves the message stored under id
func (s *PebbleStore) Get(id uint64) (*codec.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, store.ErrNotOpen
	}
	return s.getInternal(id)
}

// Insert stores msg under msg.ID, replacing any existing version
func (s *PebbleStore) Insert(msg *codec.Message) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return store.ErrNotOpen
	}
	if msg == nil || msg.ID == 0 {
		return store.ErrInvalidKey
	}

	data, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}

	key := messageKey(msg.ID)
	_, closer, err := s.db.Get(key)
	exists := err == nil
	if exists {
		closer.Close()
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return &store.StorageError{Op: "insert", ID: msg.ID, Err: err}
	}

	if err := s.db.Set(key, data, s.opts); err != nil {
		return &store.StorageError{Op: "insert", ID: msg.ID, Err: err}
	}
	if !exists {
		s.count++
	}
	return nil
}

// Remove deletes id and returns the prior message
func (s *PebbleStore) Remove(id uint64) (*codec.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, store.ErrNotOpen
	}

	msg, err := s.getInternal(id)
	if err != nil {
		return nil, err
	}

	if err := s.db.Delete(messageKey(id), s.opts); err != nil {
		return nil, &store.StorageError{Op: "remove", ID: id, Err: err}
	}
	s.count--
	return msg, nil
}

// List returns up to limit messages with id > afterID in ascending id order.
// A limit <= 0 returns every match.
func (s *PebbleStore) List(afterID uint64, limit int) ([]*codec.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, store.ErrNotOpen
	}
	if afterID == ^uint64(0) {
		return nil, nil
	}

	iter, err := s.db.NewIter(messageBounds(afterID + 1))
	if err != nil {
		return nil, &store.StorageError{Op: "list", ID: afterID, Err: err}
	}
	defer iter.Close()

	msgs := []*codec.Message{}
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len(messagePrefix)+8 {
			return nil, fmt.Errorf("%w: key %x", store.ErrCorruption, key)
		}
		msg, err := decodeMessage(s.codec, binary.BigEndian.Uint64(key[len(messagePrefix):]), iter.Value())
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
		if limit > 0 && len(msgs) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, &store.StorageError{Op: "list", ID: afterID, Err: err}
	}

	return msgs, nil
}

// Len returns the number of stored messages
func (s *PebbleStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.count
}

// LoadCounter returns the persisted allocator counter, zero if never written
func (s *PebbleStore) LoadCounter() (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return 0, store.ErrNotOpen
	}
	return s.loadCounter()
}

func (s *PebbleStore) loadCounter() (uint64, error) {
	data, closer, err := s.db.Get(counterKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, fmt.Errorf("%w: counter has %d bytes", store.ErrCorruption, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// StoreCounter durably writes the allocator counter. It always syncs, even
// when message writes do not.
func (s *PebbleStore) StoreCounter(value uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return store.ErrNotOpen
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	if err := s.db.Set(counterKey, buf, pebble.Sync); err != nil {
		return &store.StorageError{Op: "store counter", ID: value, Err: err}
	}
	return nil
}

// Stats returns store statistics
func (s *PebbleStore) Stats() *store.StoreStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := &store.StoreStats{
		Backend: "pebble",
		FileID:  s.fileID.String(),
		Keys:    s.count,
	}
	if s.closed {
		return stats
	}

	stats.DataSize = int64(s.db.Metrics().DiskSpaceUsage())
	if iter, err := s.db.NewIter(messageBounds(0)); err == nil {
		if iter.First() && len(iter.Key()) == len(messagePrefix)+8 {
			stats.FirstID = binary.BigEndian.Uint64(iter.Key()[len(messagePrefix):])
		}
		iter.Close()
	}
	stats.Counter, _ = s.loadCounter()
	return stats
}

// Path returns the database directory
func (s *PebbleStore) Path() string {
	return s.path
}

// Close flushes and closes the database
func (s *PebbleStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ store.RecordStore = (*PebbleStore)(nil)
