package store

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/ssargent/boarddb/pkg/codec"
	"github.com/ssargent/boarddb/pkg/idalloc"
)

// DefaultFileName is the page file created inside the data directory.
const DefaultFileName = "board.db"

// RecordStore is a durable ordered mapping from message id to message.
// Implementations also persist the id allocator counter outside the record
// keyspace.
type RecordStore interface {
	idalloc.CounterStore

	Get(id uint64) (*codec.Message, error)
	Insert(msg *codec.Message) error
	Remove(id uint64) (*codec.Message, error)
	List(afterID uint64, limit int) ([]*codec.Message, error)
	Len() int
	Stats() *StoreStats
	Close() error
}

// PagedStoreConfig holds configuration for the paged record store
type PagedStoreConfig struct {
	DataDir  string          // Directory for the page file
	FileName string          // Page file name, DefaultFileName if empty
	NoSync   bool            // Skip fsync, tests only
	Logger   *zerolog.Logger // Optional, disabled if nil
}

// RecoveryResult describes what Open found in the page file
type RecoveryResult struct {
	FileID            string
	PagesScanned      int
	SlotsScanned      int
	RecordsLoaded     int
	CorruptSlotsFreed int
	StaleSlotsFreed   int
	Counter           uint64
	RecoveryTime      int64 // nanoseconds
}

// StoreStats holds statistics about the store
type StoreStats struct {
	Backend     string `json:"backend"`
	FileID      string `json:"file_id,omitempty"`
	Keys        int    `json:"keys"`
	FirstID     uint64 `json:"first_id,omitempty"` // lowest stored id, 0 when empty
	Pages       uint64 `json:"pages,omitempty"`
	FreeSlots   int    `json:"free_slots,omitempty"`
	IndexHeight int    `json:"index_height,omitempty"`
	DataSize    int64  `json:"data_size"`
	Counter     uint64 `json:"counter"`
}

// Errors
var (
	ErrKeyNotFound = &KVError{"key not found"}
	ErrInvalidKey  = &KVError{"invalid key"}
	ErrCorruption  = &KVError{"data corruption detected"}
	ErrNotOpen     = &KVError{"store is not open"}
)

// KVError represents a record store error
type KVError struct {
	Message string
}

func (e *KVError) Error() string {
	return e.Message
}

// StorageError wraps a backing medium failure with the operation that hit it.
// The operation was aborted; prior state is intact.
type StorageError struct {
	Op  string
	ID  uint64
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage fault during %s of id=%d: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
