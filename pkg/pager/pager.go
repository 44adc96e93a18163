// Package pager manages the page-oriented backing file of a boarddb store.
//
// File layout:
//
//	page 0, 1   meta pages, written alternately (highest valid TxID wins)
//	page 2      allocator counter, two alternating CRC-protected cells
//	page 3..n   record pages: 16-byte page header + fixed-capacity slots
//
// Every mutation touches a single slot, counter cell or page and is synced
// before it returns, so a crash leaves either the old or the new bytes of that
// one region. Torn regions fail their checksum and are detected on open.
package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/segmentio/ksuid"
)

var (
	ErrCorruption      = errors.New("page file corruption detected")
	ErrIncompatible    = errors.New("page file layout is incompatible")
	ErrSlotFree        = errors.New("slot is free")
	ErrInvalidLocation = errors.New("invalid slot location")
	ErrPayloadTooLarge = errors.New("payload exceeds slot capacity")
	ErrClosed          = errors.New("pager is closed")
)

// Options configures a pager.
type Options struct {
	// SlotCapacity is the maximum payload held by one slot. It is fixed at
	// file creation and checked on every open.
	SlotCapacity int
	// NoSync skips fsync after writes. Only for tests and benchmarks.
	NoSync bool
}

// ScanResult summarises a full pass over the record pages.
type ScanResult struct {
	Pages   int
	Slots   int
	Used    int
	Corrupt []Location
}

// Pager owns the backing file.
type Pager struct {
	file         *os.File
	path         string
	opts         Options
	slotSize     int
	slotsPerPage int
	meta         Meta
	counter      counterCell
	mutex        sync.Mutex
	closed       bool
}

// Open opens or creates the page file at path.
func Open(path string, opts Options) (*Pager, error) {
	if opts.SlotCapacity <= 0 {
		return nil, fmt.Errorf("pager: slot capacity must be positive, got %d", opts.SlotCapacity)
	}
	slotSize := SlotHeaderSize + opts.SlotCapacity
	slotsPerPage := (PageSize - PageHeaderSize) / slotSize
	if slotsPerPage < 1 {
		return nil, fmt.Errorf("pager: slot size %d does not fit a %d byte page", slotSize, PageSize)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	p := &Pager{
		file:         file,
		path:         path,
		opts:         opts,
		slotSize:     slotSize,
		slotsPerPage: slotsPerPage,
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if stat.Size() == 0 {
		err = p.initialize()
	} else {
		err = p.load(stat.Size())
	}
	if err != nil {
		file.Close()
		return nil, err
	}

	return p, nil
}

// initialize writes the reserved pages of a fresh file.
func (p *Pager) initialize() error {
	p.meta = Meta{
		Magic:     MetaMagic,
		Version:   Version,
		PageSize:  PageSize,
		SlotSize:  uint32(p.slotSize),
		PageCount: uint64(FirstRecordPage),
		TxID:      0,
		FileID:    ksuid.New(),
	}

	buf := make([]byte, int(FirstRecordPage)*PageSize)
	p.meta.serialize(buf[int(MetaPageA)*PageSize:])
	// Cell 0 holds counter zero so a torn first StoreCounter has a fallback.
	p.counter = counterCell{}
	p.counter.serialize(buf[int(CounterPageID)*PageSize:])
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return err
	}
	return p.sync()
}

// load reads the newest valid meta page and the counter page.
func (p *Pager) load(fileSize int64) error {
	if fileSize < int64(FirstRecordPage)*PageSize {
		return fmt.Errorf("%w: file too short for reserved pages: %d bytes", ErrCorruption, fileSize)
	}

	buf := make([]byte, int(FirstRecordPage)*PageSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return err
	}

	var a, b Meta
	validA := a.deserialize(buf[int(MetaPageA)*PageSize:])
	validB := b.deserialize(buf[int(MetaPageB)*PageSize:])
	switch {
	case validA && validB:
		if b.TxID > a.TxID {
			p.meta = b
		} else {
			p.meta = a
		}
	case validA:
		p.meta = a
	case validB:
		p.meta = b
	default:
		return fmt.Errorf("%w: no valid meta page", ErrCorruption)
	}

	if p.meta.Version != Version || p.meta.PageSize != PageSize {
		return fmt.Errorf("%w: version %d page size %d", ErrIncompatible, p.meta.Version, p.meta.PageSize)
	}
	if int(p.meta.SlotSize) != p.slotSize {
		return fmt.Errorf("%w: slot size %d, expected %d", ErrIncompatible, p.meta.SlotSize, p.slotSize)
	}
	if int64(p.meta.PageCount)*PageSize > fileSize {
		return fmt.Errorf("%w: meta claims %d pages, file holds %d bytes", ErrCorruption, p.meta.PageCount, fileSize)
	}

	counterPage := buf[int(CounterPageID)*PageSize:]
	c0, written0, valid0 := deserializeCounterCell(counterPage[0:])
	c1, written1, valid1 := deserializeCounterCell(counterPage[counterCellSize:])
	switch {
	case valid0 && valid1:
		if c1.seq > c0.seq {
			p.counter = c1
		} else {
			p.counter = c0
		}
	case valid0:
		p.counter = c0
	case valid1:
		p.counter = c1
	case written0 || written1:
		return fmt.Errorf("%w: no valid counter cell", ErrCorruption)
	}

	return nil
}

// Meta returns a copy of the current meta page.
func (p *Pager) Meta() Meta {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.meta
}

// SlotsPerPage returns the number of slots in each record page.
func (p *Pager) SlotsPerPage() int {
	return p.slotsPerPage
}

// SlotCapacity returns the maximum payload of a slot.
func (p *Pager) SlotCapacity() int {
	return p.opts.SlotCapacity
}

// Size returns the logical size of the file in bytes.
func (p *Pager) Size() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return int64(p.meta.PageCount) * PageSize
}

// Path returns the file path
func (p *Pager) Path() string {
	return p.path
}

// AllocatePage appends an empty record page and commits it to the meta page.
func (p *Pager) AllocatePage() (PageID, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return 0, ErrClosed
	}

	id := p.meta.PageCount
	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(page[0:4], RecordMagic)
	binary.LittleEndian.PutUint64(page[4:12], id)
	if _, err := p.file.WriteAt(page, int64(id)*PageSize); err != nil {
		return 0, err
	}
	if err := p.sync(); err != nil {
		return 0, err
	}

	next := p.meta
	next.PageCount++
	next.TxID++
	if err := p.writeMeta(next); err != nil {
		return 0, err
	}

	return id, nil
}

// writeMeta writes m to the meta page that does not hold the current meta.
func (p *Pager) writeMeta(m Meta) error {
	buf := make([]byte, metaSize)
	m.serialize(buf)

	target := MetaPageA
	if m.TxID%2 == 1 {
		target = MetaPageB
	}
	if _, err := p.file.WriteAt(buf, int64(target)*PageSize); err != nil {
		return err
	}
	if err := p.sync(); err != nil {
		return err
	}
	p.meta = m
	return nil
}

func (p *Pager) slotOffset(loc Location) (int64, error) {
	if loc.Page < FirstRecordPage || loc.Page >= p.meta.PageCount {
		return 0, fmt.Errorf("%w: page %d", ErrInvalidLocation, loc.Page)
	}
	if loc.Slot < 0 || loc.Slot >= p.slotsPerPage {
		return 0, fmt.Errorf("%w: slot %d", ErrInvalidLocation, loc.Slot)
	}
	return int64(loc.Page)*PageSize + PageHeaderSize + int64(loc.Slot*p.slotSize), nil
}

// ReadSlot returns the header and payload stored at loc.
func (p *Pager) ReadSlot(loc Location) (SlotHeader, []byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return SlotHeader{}, nil, ErrClosed
	}

	off, err := p.slotOffset(loc)
	if err != nil {
		return SlotHeader{}, nil, err
	}

	buf := make([]byte, p.slotSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return SlotHeader{}, nil, err
	}

	return p.parseSlot(loc, buf)
}

func (p *Pager) parseSlot(loc Location, buf []byte) (SlotHeader, []byte, error) {
	if buf[4] == slotFree {
		return SlotHeader{}, nil, ErrSlotFree
	}
	if buf[4] != slotUsed {
		return SlotHeader{}, nil, fmt.Errorf("%w: slot %d/%d has state %d", ErrCorruption, loc.Page, loc.Slot, buf[4])
	}

	hdr := SlotHeader{
		Length: binary.LittleEndian.Uint32(buf[8:12]),
		Key:    binary.LittleEndian.Uint64(buf[12:20]),
		Seq:    binary.LittleEndian.Uint64(buf[20:28]),
	}
	if int(hdr.Length) > p.opts.SlotCapacity {
		return SlotHeader{}, nil, fmt.Errorf("%w: slot %d/%d length %d", ErrCorruption, loc.Page, loc.Slot, hdr.Length)
	}

	payload := buf[SlotHeaderSize : SlotHeaderSize+int(hdr.Length)]
	if binary.LittleEndian.Uint32(buf[0:4]) != slotChecksum(buf[:SlotHeaderSize], payload) {
		return SlotHeader{}, nil, fmt.Errorf("%w: slot %d/%d checksum mismatch", ErrCorruption, loc.Page, loc.Slot)
	}

	return hdr, append([]byte(nil), payload...), nil
}

// WriteSlot stores payload at loc. Only the bytes of that slot are written.
func (p *Pager) WriteSlot(loc Location, key, seq uint64, payload []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(payload) > p.opts.SlotCapacity {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), p.opts.SlotCapacity)
	}

	off, err := p.slotOffset(loc)
	if err != nil {
		return err
	}

	buf := make([]byte, SlotHeaderSize+len(payload))
	copy(buf[SlotHeaderSize:], payload)
	encodeSlotHeader(buf, SlotHeader{Key: key, Seq: seq, Length: uint32(len(payload))}, payload)

	if _, err := p.file.WriteAt(buf, off); err != nil {
		return err
	}
	return p.sync()
}

// ClearSlot marks the slot at loc free.
func (p *Pager) ClearSlot(loc Location) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return ErrClosed
	}

	off, err := p.slotOffset(loc)
	if err != nil {
		return err
	}

	if _, err := p.file.WriteAt(make([]byte, SlotHeaderSize), off); err != nil {
		return err
	}
	return p.sync()
}

// Scan visits every valid occupied slot in page order. Free slots are
// skipped, slots failing validation are reported in the result.
func (p *Pager) Scan(fn func(loc Location, hdr SlotHeader, payload []byte) error) (*ScanResult, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	res := &ScanResult{}
	page := make([]byte, PageSize)
	for id := FirstRecordPage; id < p.meta.PageCount; id++ {
		if _, err := p.file.ReadAt(page, int64(id)*PageSize); err != nil {
			return nil, err
		}
		if binary.LittleEndian.Uint32(page[0:4]) != RecordMagic || binary.LittleEndian.Uint64(page[4:12]) != id {
			return nil, fmt.Errorf("%w: bad header on record page %d", ErrCorruption, id)
		}
		res.Pages++

		for slot := 0; slot < p.slotsPerPage; slot++ {
			res.Slots++
			loc := Location{Page: id, Slot: slot}
			start := PageHeaderSize + slot*p.slotSize
			hdr, payload, err := p.parseSlot(loc, page[start:start+p.slotSize])
			switch {
			case errors.Is(err, ErrSlotFree):
				continue
			case errors.Is(err, ErrCorruption):
				res.Corrupt = append(res.Corrupt, loc)
				continue
			case err != nil:
				return nil, err
			}
			res.Used++
			if err := fn(loc, hdr, payload); err != nil {
				return nil, err
			}
		}
	}

	return res, nil
}

// LoadCounter returns the persisted allocator counter.
func (p *Pager) LoadCounter() (uint64, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	return p.counter.value, nil
}

// StoreCounter durably replaces the allocator counter. Cells alternate so the
// previous value survives a torn write. The write is always fsynced, NoSync
// only applies to record slots.
func (p *Pager) StoreCounter(value uint64) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return ErrClosed
	}

	next := counterCell{seq: p.counter.seq + 1, value: value}
	buf := make([]byte, counterCellSize)
	next.serialize(buf)

	off := int64(CounterPageID)*PageSize + int64(next.seq%2)*counterCellSize
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}
	p.counter = next
	return nil
}

// Sync forces a fsync to disk
func (p *Pager) Sync() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.file.Sync()
}

func (p *Pager) sync() error {
	if p.opts.NoSync {
		return nil
	}
	return p.file.Sync()
}

// Close syncs and closes the file.
func (p *Pager) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}
