// Package persistence implements the snapshot format and the
// atomic-write coordinator that installs a new snapshot at the
// database's canonical path without ever leaving a torn file visible
// to a concurrent reader or a crash.
package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lhlRahman/vector-database/store"
	"github.com/lhlRahman/vector-database/vector"
)

// MagicHeader is "VDBD" read as a little-endian u32, identifying a
// snapshot file.
const MagicHeader uint32 = 0x56444244

// MagicFooter is "ENDM" read as a little-endian u32, closing a
// well-formed snapshot file.
const MagicFooter uint32 = 0x454E444D

// Version is the only snapshot format version this package writes or
// accepts.
const Version uint32 = 1

// ErrCorruptSnapshot is returned by Decode when the header magic,
// version, footer magic, or footer checksum do not match what was
// written.
var ErrCorruptSnapshot = errors.New("persistence: corrupt snapshot")

const headerSize = 4 + 4 + 8 + 8 + 8 // magic, version, sequence, timestamp_us, count
const footerSize = 4 + 4             // magic, checksum

// Encode serializes a full snapshot: header, every record as
// len32 key | key | dims32 | D x f32 | len32 metadata | metadata, and a
// footer whose checksum XOR-folds every length/dims field written in
// the body.
func Encode(sequence uint64, timestampUs int64, records []store.Record) []byte {
	buf := make([]byte, headerSize, headerSize+footerSize+estimateBodySize(records))
	binary.LittleEndian.PutUint32(buf[0:4], MagicHeader)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint64(buf[8:16], sequence)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(timestampUs))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(records)))

	var footerChecksum uint32
	for _, r := range records {
		keyBytes := []byte(r.Key)
		vecBytes := r.Vector.Bytes()
		dims := uint32(r.Vector.Dim())
		keyLen := uint32(len(keyBytes))
		metaLen := uint32(len(r.Metadata))

		footerChecksum ^= keyLen
		footerChecksum ^= dims
		footerChecksum ^= metaLen

		buf = appendUint32(buf, keyLen)
		buf = append(buf, keyBytes...)
		buf = appendUint32(buf, dims)
		buf = append(buf, vecBytes...)
		buf = appendUint32(buf, metaLen)
		buf = append(buf, r.Metadata...)
	}

	buf = appendUint32(buf, MagicFooter)
	buf = appendUint32(buf, footerChecksum)
	return buf
}

// Decode parses a snapshot previously produced by Encode, validating
// header magic/version and footer magic/checksum before trusting any
// of its records.
func Decode(buf []byte) (sequence uint64, timestampUs int64, records []store.Record, err error) {
	if len(buf) < headerSize+footerSize {
		return 0, 0, nil, fmt.Errorf("%w: truncated header/footer", ErrCorruptSnapshot)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != MagicHeader {
		return 0, 0, nil, fmt.Errorf("%w: bad header magic", ErrCorruptSnapshot)
	}
	if binary.LittleEndian.Uint32(buf[4:8]) != Version {
		return 0, 0, nil, fmt.Errorf("%w: unsupported version", ErrCorruptSnapshot)
	}
	sequence = binary.LittleEndian.Uint64(buf[8:16])
	timestampUs = int64(binary.LittleEndian.Uint64(buf[16:24]))
	count := binary.LittleEndian.Uint64(buf[24:32])

	body := buf[headerSize : len(buf)-footerSize]
	footer := buf[len(buf)-footerSize:]

	var computedChecksum uint32
	records = make([]store.Record, 0, count)
	off := 0
	for i := uint64(0); i < count; i++ {
		key, _, n, err := readLenPrefixed(body[off:])
		if err != nil {
			return 0, 0, nil, fmt.Errorf("%w: record %d key: %v", ErrCorruptSnapshot, i, err)
		}
		off += n

		dims, n, err := readUint32At(body[off:])
		if err != nil {
			return 0, 0, nil, fmt.Errorf("%w: record %d dims: %v", ErrCorruptSnapshot, i, err)
		}
		off += n
		vecByteLen := int(dims) * 4
		if len(body)-off < vecByteLen {
			return 0, 0, nil, fmt.Errorf("%w: record %d vector truncated", ErrCorruptSnapshot, i)
		}
		vecBytes := body[off : off+vecByteLen]
		off += vecByteLen

		v, err := vector.FromBytes(vecBytes)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("%w: record %d vector: %v", ErrCorruptSnapshot, i, err)
		}

		metadata, _, n, err := readLenPrefixed(body[off:])
		if err != nil {
			return 0, 0, nil, fmt.Errorf("%w: record %d metadata: %v", ErrCorruptSnapshot, i, err)
		}
		off += n

		keyLen := uint32(len(key))
		metaLen := uint32(len(metadata))
		computedChecksum ^= keyLen
		computedChecksum ^= dims
		computedChecksum ^= metaLen

		records = append(records, store.Record{
			Key:      string(key),
			Vector:   v,
			Metadata: nilIfEmpty(metadata),
		})
	}

	if binary.LittleEndian.Uint32(footer[0:4]) != MagicFooter {
		return 0, 0, nil, fmt.Errorf("%w: bad footer magic", ErrCorruptSnapshot)
	}
	storedChecksum := binary.LittleEndian.Uint32(footer[4:8])
	if storedChecksum != computedChecksum {
		return 0, 0, nil, fmt.Errorf("%w: footer checksum mismatch", ErrCorruptSnapshot)
	}

	return sequence, timestampUs, records, nil
}

func estimateBodySize(records []store.Record) int {
	n := 0
	for _, r := range records {
		n += 4 + len(r.Key) + 4 + r.Vector.Dim()*4 + 4 + len(r.Metadata)
	}
	return n
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// readLenPrefixed reads a len32-prefixed byte slice starting at buf[0]
// and returns it, the remainder of buf, the number of bytes consumed
// (prefix + data), and an error if buf is too short.
func readLenPrefixed(buf []byte) (data []byte, rest []byte, consumed int, err error) {
	if len(buf) < 4 {
		return nil, nil, 0, errors.New("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	if uint32(len(buf)-4) < n {
		return nil, nil, 0, errors.New("truncated data")
	}
	return buf[4 : 4+n], buf[4+n:], 4 + int(n), nil
}

func readUint32At(buf []byte) (uint32, int, error) {
	if len(buf) < 4 {
		return 0, 0, errors.New("truncated u32")
	}
	return binary.LittleEndian.Uint32(buf[:4]), 4, nil
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
