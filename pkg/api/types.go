package api

import (
	"context"

	"github.com/ssargent/boarddb/pkg/board"
	"github.com/ssargent/boarddb/pkg/codec"
	"github.com/ssargent/boarddb/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// MessageRequest is the body of create and update requests
type MessageRequest struct {
	Title         string `json:"title"`
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url"`
}

// ListResponse is a page of messages. NextAfter is the after_id for the next
// page, zero when there are no more messages.
type ListResponse struct {
	Messages  []*codec.Message `json:"messages"`
	NextAfter uint64           `json:"next_after,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port int
	Bind string
}

// MessageService is the set of message operations served over HTTP
type MessageService interface {
	Create(ctx context.Context, p board.Payload) (*codec.Message, error)
	Read(ctx context.Context, id uint64) (*codec.Message, error)
	Update(ctx context.Context, id uint64, p board.Payload) (*codec.Message, error)
	Delete(ctx context.Context, id uint64) (*codec.Message, error)
	List(ctx context.Context, afterID uint64, limit int) ([]*codec.Message, error)
	Stats() *store.StoreStats
}
