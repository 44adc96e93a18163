// Package board implements message create, read, update and delete on top of a
// record store and an identifier allocator.
package board

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/ssargent/boarddb/pkg/codec"
	"github.com/ssargent/boarddb/pkg/idalloc"
	"github.com/ssargent/boarddb/pkg/store"
)

// Payload is the caller-supplied content of a message.
type Payload struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url"`
}

// Limits caps individual payload fields in bytes. Zero means only the
// encoded size bound applies.
type Limits struct {
	MaxTitle         int `yaml:"max_title" mapstructure:"max_title"`
	MaxBody          int `yaml:"max_body" mapstructure:"max_body"`
	MaxAttachmentURL int `yaml:"max_attachment_url" mapstructure:"max_attachment_url"`
}

// ServiceConfig holds the dependencies of a Service
type ServiceConfig struct {
	Store  store.RecordStore
	Limits Limits
	Clock  func() uint64   // nanoseconds since the Unix epoch, time.Now if nil
	Logger *zerolog.Logger // Optional, disabled if nil
}

// Service performs message operations one at a time.
type Service struct {
	store  store.RecordStore
	ids    *idalloc.Allocator
	codec  *codec.MessageCodec
	limits Limits
	clock  func() uint64
	logger zerolog.Logger
	mutex  sync.Mutex
}

// NewService creates a service over an open record store. The allocator
// resumes from the counter persisted in the store.
func NewService(config ServiceConfig) (*Service, error) {
	if config.Store == nil {
		return nil, errors.New("board: store is required")
	}

	ids, err := idalloc.New(config.Store)
	if err != nil {
		return nil, &StorageFault{Op: "load id counter", Err: err}
	}

	clock := config.Clock
	if clock == nil {
		clock = func() uint64 { return uint64(time.Now().UnixNano()) }
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "board").Logger()
	}

	return &Service{
		store:  config.Store,
		ids:    ids,
		codec:  codec.NewMessageCodec(),
		limits: config.Limits,
		clock:  clock,
		logger: logger,
	}, nil
}

func (s *Service) checkLimits(p Payload) error {
	check := func(field, value string, limit int) error {
		if !utf8.ValidString(value) {
			return &FieldError{Field: field, Reason: "invalid utf-8"}
		}
		if limit > 0 && len(value) > limit {
			return &FieldError{Field: field, Reason: "too long", Size: len(value), Limit: limit}
		}
		return nil
	}

	if err := check("title", p.Title, s.limits.MaxTitle); err != nil {
		return err
	}
	if err := check("body", p.Body, s.limits.MaxBody); err != nil {
		return err
	}
	return check("attachment_url", p.AttachmentURL, s.limits.MaxAttachmentURL)
}

// classify maps store errors onto the service error taxonomy.
func classify(op string, id uint64, err error) error {
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		return &NotFoundError{ID: id, Op: op}
	case errors.Is(err, codec.ErrEncodingViolation):
		return err
	default:
		return &StorageFault{Op: op, Err: err}
	}
}

// Create allocates the next id and stores a new message. Payloads that would
// not fit the encoded size bound are rejected before an id is allocated.
func (s *Service) Create(ctx context.Context, p Payload) (*codec.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.checkLimits(p); err != nil {
		return nil, err
	}

	msg := &codec.Message{
		ID:            s.ids.Peek() + 1,
		Title:         p.Title,
		Body:          p.Body,
		AttachmentURL: p.AttachmentURL,
		CreatedAt:     s.clock(),
	}
	if _, err := s.codec.Size(msg); err != nil {
		return nil, err
	}

	id, err := s.ids.Next()
	if err != nil {
		if errors.Is(err, idalloc.ErrExhausted) {
			return nil, err
		}
		return nil, &StorageFault{Op: "create", Err: err}
	}
	msg.ID = id

	if err := s.store.Insert(msg); err != nil {
		s.logger.Error().Err(err).Uint64("id", id).Msg("failed to insert message")
		return nil, classify("create", id, err)
	}

	s.logger.Debug().Uint64("id", id).Msg("message created")
	return msg.Clone(), nil
}

// Read returns the message stored under id.
func (s *Service) Read(ctx context.Context, id uint64) (*codec.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	msg, err := s.store.Get(id)
	if err != nil {
		return nil, classify("read", id, err)
	}
	return msg, nil
}

// Update replaces the content of an existing message. It never creates one.
// ID and CreatedAt are kept; UpdatedAt is set to the current time, never
// earlier than CreatedAt.
func (s *Service) Update(ctx context.Context, id uint64, p Payload) (*codec.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.store.Get(id)
	if err != nil {
		return nil, classify("update", id, err)
	}

	if err := s.checkLimits(p); err != nil {
		return nil, err
	}

	now := s.clock()
	if now < current.CreatedAt {
		now = current.CreatedAt
	}

	msg := &codec.Message{
		ID:            current.ID,
		Title:         p.Title,
		Body:          p.Body,
		AttachmentURL: p.AttachmentURL,
		CreatedAt:     current.CreatedAt,
		UpdatedAt:     &now,
	}
	if err := s.store.Insert(msg); err != nil {
		s.logger.Error().Err(err).Uint64("id", id).Msg("failed to update message")
		return nil, classify("update", id, err)
	}

	s.logger.Debug().Uint64("id", id).Msg("message updated")
	return msg.Clone(), nil
}

// Delete removes a message and returns it as it was.
func (s *Service) Delete(ctx context.Context, id uint64) (*codec.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	msg, err := s.store.Remove(id)
	if err != nil {
		return nil, classify("delete", id, err)
	}

	s.logger.Debug().Uint64("id", id).Msg("message deleted")
	return msg, nil
}

// List returns up to limit messages with id greater than afterID, in id order.
func (s *Service) List(ctx context.Context, afterID uint64, limit int) ([]*codec.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	msgs, err := s.store.List(afterID, limit)
	if err != nil {
		return nil, &StorageFault{Op: "list", Err: err}
	}
	return msgs, nil
}

// Stats returns store statistics with the last issued id as the counter.
func (s *Service) Stats() *store.StoreStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := s.store.Stats()
	stats.Counter = s.ids.Peek()
	return stats
}

// Close closes the underlying store.
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.store.Close()
}
