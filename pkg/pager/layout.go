package pager

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/segmentio/ksuid"
)

const (
	// PageSize is the size of each page in bytes.
	PageSize = 4096

	// Magic numbers identifying meta and record pages.
	MetaMagic   uint32 = 0x4244424d // "BDBM"
	RecordMagic uint32 = 0x42444250 // "BDBP"

	// Version of the file format.
	Version uint32 = 1

	// Reserved pages. The two meta pages are written alternately, the counter
	// page holds the allocator state and nothing else.
	MetaPageA       PageID = 0
	MetaPageB       PageID = 1
	CounterPageID   PageID = 2
	FirstRecordPage PageID = 3

	// PageHeaderSize is Magic(4) + PageID(8) + Reserved(4).
	PageHeaderSize = 16

	// SlotHeaderSize is CRC32(4) + State(1) + Reserved(3) + Length(4) + Key(8) + Seq(8) + Reserved(4).
	SlotHeaderSize = 32

	// metaSize is Magic(4) + Version(4) + PageSize(4) + SlotSize(4) +
	// PageCount(8) + TxID(8) + FileID(20) + CRC32(4).
	metaSize = 56

	// counterCellSize is Seq(8) + Value(8) + CRC32(4) + pad(4).
	counterCellSize = 24

	slotFree byte = 0
	slotUsed byte = 1
)

// PageID is the identifier for a page.
type PageID = uint64

// Location addresses one slot in a record page.
type Location struct {
	Page PageID
	Slot int
}

// SlotHeader describes the payload held in a slot.
type SlotHeader struct {
	Key    uint64 // Record key
	Seq    uint64 // Write sequence, higher wins on recovery
	Length uint32 // Payload length in bytes
}

// Meta is the file header, stored on pages 0 and 1.
type Meta struct {
	Magic     uint32
	Version   uint32
	PageSize  uint32
	SlotSize  uint32
	PageCount uint64 // Total number of pages including reserved ones
	TxID      uint64 // Incremented on every meta write
	FileID    ksuid.KSUID
}

func (m *Meta) serialize(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], m.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], m.Version)
	binary.LittleEndian.PutUint32(buf[8:12], m.PageSize)
	binary.LittleEndian.PutUint32(buf[12:16], m.SlotSize)
	binary.LittleEndian.PutUint64(buf[16:24], m.PageCount)
	binary.LittleEndian.PutUint64(buf[24:32], m.TxID)
	copy(buf[32:52], m.FileID.Bytes())
	binary.LittleEndian.PutUint32(buf[52:56], crc32.ChecksumIEEE(buf[0:52]))
}

// deserialize returns false if the buffer does not hold a valid meta page.
func (m *Meta) deserialize(buf []byte) bool {
	if binary.LittleEndian.Uint32(buf[52:56]) != crc32.ChecksumIEEE(buf[0:52]) {
		return false
	}
	m.Magic = binary.LittleEndian.Uint32(buf[0:4])
	if m.Magic != MetaMagic {
		return false
	}
	m.Version = binary.LittleEndian.Uint32(buf[4:8])
	m.PageSize = binary.LittleEndian.Uint32(buf[8:12])
	m.SlotSize = binary.LittleEndian.Uint32(buf[12:16])
	m.PageCount = binary.LittleEndian.Uint64(buf[16:24])
	m.TxID = binary.LittleEndian.Uint64(buf[24:32])
	id, err := ksuid.FromBytes(buf[32:52])
	if err != nil {
		return false
	}
	m.FileID = id
	return true
}

type counterCell struct {
	seq   uint64
	value uint64
}

func (c counterCell) serialize(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], c.seq)
	binary.LittleEndian.PutUint64(buf[8:16], c.value)
	binary.LittleEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(buf[0:16]))
	binary.LittleEndian.PutUint32(buf[20:24], 0)
}

// deserializeCounterCell reports whether the cell was ever written and, if so,
// whether its checksum holds.
func deserializeCounterCell(buf []byte) (cell counterCell, written, valid bool) {
	for _, b := range buf[:counterCellSize] {
		if b != 0 {
			written = true
			break
		}
	}
	if !written {
		return counterCell{}, false, false
	}
	if binary.LittleEndian.Uint32(buf[16:20]) != crc32.ChecksumIEEE(buf[0:16]) {
		return counterCell{}, true, false
	}
	return counterCell{
		seq:   binary.LittleEndian.Uint64(buf[0:8]),
		value: binary.LittleEndian.Uint64(buf[8:16]),
	}, true, true
}

func encodeSlotHeader(buf []byte, hdr SlotHeader, payload []byte) {
	buf[4] = slotUsed
	buf[5], buf[6], buf[7] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[8:12], hdr.Length)
	binary.LittleEndian.PutUint64(buf[12:20], hdr.Key)
	binary.LittleEndian.PutUint64(buf[20:28], hdr.Seq)
	binary.LittleEndian.PutUint32(buf[28:32], 0)
	binary.LittleEndian.PutUint32(buf[0:4], slotChecksum(buf[:SlotHeaderSize], payload))
}

func slotChecksum(header, payload []byte) uint32 {
	crc := crc32.NewIEEE()
	_, _ = crc.Write(header[4:SlotHeaderSize])
	_, _ = crc.Write(payload)
	return crc.Sum32()
}
