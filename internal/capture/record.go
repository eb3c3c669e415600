// Package capture persists a drained record stream to rotated,
// CRC-checked files and replays it later. It rides behind a segment
// cursor, so recording never touches the writer's hot path.
package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"

	"main/internal/schema"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 40
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'C', 'A', 'P', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("capture invalid magic")
	ErrUnsupportedRecordVer    = errors.New("capture unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("capture invalid header size")
)

// Header is the per-record metadata stored ahead of each wire record.
type Header struct {
	Kind   schema.RecordKind
	Flags  uint16
	Layout uint32
	Seq    uint64
	TsNano int64
}

// Capture record layout:
//
//	[0:4]   magic "CAP1"
//	[4:6]   record version
//	[6:8]   header size
//	[8:10]  kind
//	[10:12] flags
//	[12:16] wire layout version
//	[16:20] payload length
//	[20:28] ring sequence
//	[28:36] capture timestamp
//	[36:40] reserved
func encodeHeader(dst []byte, header Header, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(header.Kind))
	binary.LittleEndian.PutUint16(dst[10:12], header.Flags)
	binary.LittleEndian.PutUint32(dst[12:16], header.Layout)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[20:28], header.Seq)
	binary.LittleEndian.PutUint64(dst[28:36], uint64(header.TsNano))
	binary.LittleEndian.PutUint32(dst[36:40], 0)
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (Header, uint32, error) {
	if len(src) < recordHeaderSize {
		return Header{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return Header{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return Header{}, 0, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return Header{}, 0, ErrInvalidRecordHeaderSize
	}
	payloadLen := binary.LittleEndian.Uint32(src[16:20])
	h := Header{
		Kind:   schema.RecordKind(binary.LittleEndian.Uint16(src[8:10])),
		Flags:  binary.LittleEndian.Uint16(src[10:12]),
		Layout: binary.LittleEndian.Uint32(src[12:16]),
		Seq:    binary.LittleEndian.Uint64(src[20:28]),
		TsNano: int64(binary.LittleEndian.Uint64(src[28:36])),
	}
	return h, payloadLen, nil
}
