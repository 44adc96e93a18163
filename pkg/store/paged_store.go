package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/ssargent/boarddb/pkg/bptree"
	"github.com/ssargent/boarddb/pkg/codec"
	"github.com/ssargent/boarddb/pkg/pager"
)

const indexOrder = 64

// slotRef locates the live version of a record.
type slotRef struct {
	loc pager.Location
	seq uint64
}

// PagedStore keeps messages in fixed-capacity slots of a page file and an
// in-memory B+tree from id to slot, rebuilt on Open.
//
// An update writes the new version into a free slot before the old slot is
// cleared. Each slot carries a write sequence, so if the process stops between
// the two writes, recovery keeps the newer version and frees the other.
type PagedStore struct {
	config PagedStoreConfig
	path   string
	pager  *pager.Pager
	codec  *codec.MessageCodec
	index  *bptree.BPlusTree[uint64, slotRef]
	free   []pager.Location
	seq    uint64
	logger zerolog.Logger
	mutex  sync.Mutex
	isOpen bool
}

// NewPagedStore creates a new paged record store instance
func NewPagedStore(config PagedStoreConfig) (*PagedStore, error) {
	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, err
	}

	fileName := config.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "paged_store").Logger()
	}

	return &PagedStore{
		config: config,
		path:   filepath.Join(config.DataDir, fileName),
		codec:  codec.NewMessageCodec(),
		logger: logger,
	}, nil
}

// Open loads the page file, rebuilds the index and repairs torn or stale slots
func (s *PagedStore) Open() (*RecoveryResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isOpen {
		return &RecoveryResult{}, nil
	}

	startTime := time.Now()

	p, err := pager.Open(s.path, pager.Options{
		SlotCapacity: codec.MaxEncodedSize,
		NoSync:       s.config.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open page file: %w", err)
	}

	index := bptree.NewBPlusTree[uint64, slotRef](indexOrder)
	occupied := make(map[pager.Location]bool)
	var stale, undecodable []pager.Location
	var maxSeq uint64

	scan, err := p.Scan(func(loc pager.Location, hdr pager.SlotHeader, payload []byte) error {
		if hdr.Seq > maxSeq {
			maxSeq = hdr.Seq
		}

		msg, err := s.codec.Decode(payload)
		if err != nil || msg.ID != hdr.Key || hdr.Key == 0 {
			undecodable = append(undecodable, loc)
			return nil
		}

		ref := slotRef{loc: loc, seq: hdr.Seq}
		if prev, exists := index.Search(hdr.Key); exists {
			if prev.seq > ref.seq {
				stale = append(stale, loc)
				return nil
			}
			stale = append(stale, prev.loc)
			delete(occupied, prev.loc)
		}
		index.Insert(hdr.Key, ref)
		occupied[loc] = true
		return nil
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to scan page file: %w", err)
	}

	corrupt := append(scan.Corrupt, undecodable...)
	for _, loc := range append(append([]pager.Location{}, corrupt...), stale...) {
		if err := p.ClearSlot(loc); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to repair slot %d/%d: %w", loc.Page, loc.Slot, err)
		}
	}

	meta := p.Meta()
	var free []pager.Location
	for id := meta.PageCount - 1; id >= pager.FirstRecordPage; id-- {
		for slot := p.SlotsPerPage() - 1; slot >= 0; slot-- {
			loc := pager.Location{Page: id, Slot: slot}
			if !occupied[loc] {
				free = append(free, loc)
			}
		}
	}

	counter, err := p.LoadCounter()
	if err != nil {
		p.Close()
		return nil, err
	}

	s.pager = p
	s.index = index
	s.free = free
	s.seq = maxSeq
	s.isOpen = true

	result := &RecoveryResult{
		FileID:            meta.FileID.String(),
		PagesScanned:      scan.Pages,
		SlotsScanned:      scan.Slots,
		RecordsLoaded:     index.Len(),
		CorruptSlotsFreed: len(corrupt),
		StaleSlotsFreed:   len(stale),
		Counter:           counter,
		RecoveryTime:      time.Since(startTime).Nanoseconds(),
	}

	event := s.logger.Info()
	if len(corrupt) > 0 {
		event = s.logger.Warn()
	}
	event.Str("path", s.path).
		Str("file_id", result.FileID).
		Int("records", result.RecordsLoaded).
		Int("corrupt_freed", result.CorruptSlotsFreed).
		Int("stale_freed", result.StaleSlotsFreed).
		Uint64("counter", counter).
		Dur("elapsed", time.Since(startTime)).
		Msg("opened page file")

	return result, nil
}

// Get retrieves the message stored under id
func (s *PagedStore) Get(id uint64) (*codec.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrNotOpen
	}

	ref, exists := s.index.Search(id)
	if !exists {
		return nil, ErrKeyNotFound
	}

	return s.readInternal(id, ref)
}

// readInternal reads and decodes a slot without acquiring the mutex
func (s *PagedStore) readInternal(id uint64, ref slotRef) (*codec.Message, error) {
	_, payload, err := s.pager.ReadSlot(ref.loc)
	if err != nil {
		if errors.Is(err, pager.ErrCorruption) {
			return nil, fmt.Errorf("%w: id=%d: %v", ErrCorruption, id, err)
		}
		return nil, &StorageError{Op: "read", ID: id, Err: err}
	}

	msg, err := s.codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: id=%d: %v", ErrCorruption, id, err)
	}
	if msg.ID != id {
		return nil, fmt.Errorf("%w: slot for id=%d holds id=%d", ErrCorruption, id, msg.ID)
	}

	return msg, nil
}

// Insert stores msg under msg.ID, replacing any existing version. Encoding
// failures are returned before anything is written.
func (s *PagedStore) Insert(msg *codec.Message) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return ErrNotOpen
	}
	if msg == nil || msg.ID == 0 {
		return ErrInvalidKey
	}

	data, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}

	loc, err := s.takeFreeSlot()
	if err != nil {
		return &StorageError{Op: "insert", ID: msg.ID, Err: err}
	}

	s.seq++
	if err := s.pager.WriteSlot(loc, msg.ID, s.seq, data); err != nil {
		s.free = append(s.free, loc)
		return &StorageError{Op: "insert", ID: msg.ID, Err: err}
	}

	prev, exists := s.index.Search(msg.ID)
	s.index.Insert(msg.ID, slotRef{loc: loc, seq: s.seq})

	if exists {
		if err := s.pager.ClearSlot(prev.loc); err != nil {
			// The new version already wins on sequence; the old slot is
			// reclaimed as stale on the next Open.
			s.logger.Warn().Err(err).Uint64("id", msg.ID).
				Uint64("page", prev.loc.Page).Int("slot", prev.loc.Slot).
				Msg("failed to clear superseded slot")
			return nil
		}
		s.free = append(s.free, prev.loc)
	}

	return nil
}

// takeFreeSlot pops a free slot, growing the file by one page when none is left
func (s *PagedStore) takeFreeSlot() (pager.Location, error) {
	if len(s.free) == 0 {
		page, err := s.pager.AllocatePage()
		if err != nil {
			return pager.Location{}, err
		}
		for slot := s.pager.SlotsPerPage() - 1; slot >= 0; slot-- {
			s.free = append(s.free, pager.Location{Page: page, Slot: slot})
		}
		s.logger.Debug().Uint64("page", page).Msg("allocated record page")
	}

	loc := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	return loc, nil
}

// Remove deletes id and returns the prior message
func (s *PagedStore) Remove(id uint64) (*codec.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrNotOpen
	}

	ref, exists := s.index.Search(id)
	if !exists {
		return nil, ErrKeyNotFound
	}

	msg, err := s.readInternal(id, ref)
	if err != nil {
		return nil, err
	}

	if err := s.pager.ClearSlot(ref.loc); err != nil {
		return nil, &StorageError{Op: "remove", ID: id, Err: err}
	}
	s.index.Delete(id)
	s.free = append(s.free, ref.loc)

	return msg, nil
}

// List returns up to limit messages with id > afterID in ascending id order.
// A limit <= 0 returns every match.
func (s *PagedStore) List(afterID uint64, limit int) ([]*codec.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil, ErrNotOpen
	}
	if afterID == ^uint64(0) {
		return nil, nil
	}

	type entry struct {
		id  uint64
		ref slotRef
	}
	var entries []entry
	s.index.Ascend(afterID+1, func(id uint64, ref slotRef) bool {
		entries = append(entries, entry{id: id, ref: ref})
		return limit <= 0 || len(entries) < limit
	})

	msgs := make([]*codec.Message, 0, len(entries))
	for _, e := range entries {
		msg, err := s.readInternal(e.id, e.ref)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}

// Len returns the number of stored messages
func (s *PagedStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return 0
	}
	return s.index.Len()
}

// LoadCounter returns the persisted allocator counter from the counter page
func (s *PagedStore) LoadCounter() (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return 0, ErrNotOpen
	}
	return s.pager.LoadCounter()
}

// StoreCounter durably writes the allocator counter to the counter page
func (s *PagedStore) StoreCounter(value uint64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return ErrNotOpen
	}
	if err := s.pager.StoreCounter(value); err != nil {
		return &StorageError{Op: "store counter", ID: value, Err: err}
	}
	return nil
}

// Stats returns store statistics
func (s *PagedStore) Stats() *StoreStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return &StoreStats{Backend: "paged"}
	}

	meta := s.pager.Meta()
	counter, _ := s.pager.LoadCounter()
	first, _ := s.index.Min()
	return &StoreStats{
		Backend:     "paged",
		FileID:      meta.FileID.String(),
		Keys:        s.index.Len(),
		FirstID:     first,
		Pages:       meta.PageCount,
		FreeSlots:   len(s.free),
		IndexHeight: s.index.Height(),
		DataSize:    s.pager.Size(),
		Counter:     counter,
	}
}

// Path returns the page file path
func (s *PagedStore) Path() string {
	return s.path
}

// Close shuts down the store
func (s *PagedStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isOpen {
		return nil
	}

	s.isOpen = false
	return s.pager.Close()
}

var _ RecordStore = (*PagedStore)(nil)
