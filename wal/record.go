// Package wal implements the commit log: an append-only sequence of
// typed, sequence-numbered, checksummed records spread across rotating
// segment files. It is the durability boundary — a mutation is not
// considered committed until its record is on stable storage.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RecordType names the five kinds of WAL record.
type RecordType uint8

const (
	// RecordInsert carries a new key/vector/metadata triple.
	RecordInsert RecordType = iota + 1
	// RecordUpdate carries a replacement vector/metadata for an
	// existing key.
	RecordUpdate
	// RecordDelete carries the key of a removed record.
	RecordDelete
	// RecordCheckpoint marks that a snapshot was taken at a given
	// sequence, recorded so recovery can tell which snapshot to trust
	// if the checkpoint procedure crashes partway through.
	RecordCheckpoint
	// RecordCommit is an empty-payload durability marker written by a
	// synchronous flush that does not take a full snapshot.
	RecordCommit
)

func (t RecordType) String() string {
	switch t {
	case RecordInsert:
		return "INSERT"
	case RecordUpdate:
		return "UPDATE"
	case RecordDelete:
		return "DELETE"
	case RecordCheckpoint:
		return "CHECKPOINT"
	case RecordCommit:
		return "COMMIT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// headerSize is the fixed, pre-payload byte length of a record:
// timestamp_us(8) + type(1) + sequence(8) + checksum(4) + data_length(4).
const headerSize = 8 + 1 + 8 + 4 + 4

// ErrChecksumMismatch is returned by decode when a record's stored
// checksum disagrees with the checksum recomputed from its bytes.
var ErrChecksumMismatch = errors.New("wal: checksum mismatch")

// ErrTruncated is returned by decode when fewer bytes are available
// than the record's header or declared data_length require — the
// signature of a crash mid-write.
var ErrTruncated = errors.New("wal: truncated record")

// Record is one decoded WAL entry.
type Record struct {
	TimestampUs int64
	Type        RecordType
	Sequence    uint64
	Payload     []byte
}

// checksum computes the XOR-fold checksum over timestamp, type,
// sequence, data_length and payload, word-aligned 4 bytes at a time, as
// specified by the on-disk format.
func checksum(timestampUs int64, typ RecordType, sequence uint64, dataLength uint32, payload []byte) uint32 {
	var buf [21]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(timestampUs))
	buf[8] = byte(typ)
	binary.LittleEndian.PutUint64(buf[9:17], sequence)
	binary.LittleEndian.PutUint32(buf[17:21], dataLength)

	var sum uint32
	xorBytes(&sum, buf[:])
	xorBytes(&sum, payload)
	return sum
}

func xorBytes(sum *uint32, b []byte) {
	for i, c := range b {
		shift := uint((i % 4) * 8)
		*sum ^= uint32(c) << shift
	}
}

// Encode serializes rec to its on-disk byte representation, computing
// and embedding its checksum.
func Encode(rec Record) []byte {
	dataLength := uint32(len(rec.Payload))
	cs := checksum(rec.TimestampUs, rec.Type, rec.Sequence, dataLength, rec.Payload)

	out := make([]byte, headerSize+len(rec.Payload))
	binary.LittleEndian.PutUint64(out[0:8], uint64(rec.TimestampUs))
	out[8] = byte(rec.Type)
	binary.LittleEndian.PutUint64(out[9:17], rec.Sequence)
	binary.LittleEndian.PutUint32(out[17:21], cs)
	binary.LittleEndian.PutUint32(out[21:25], dataLength)
	copy(out[headerSize:], rec.Payload)
	return out
}

// Decode parses one record from the front of buf, returning the record,
// the number of bytes it consumed, and an error. ErrTruncated means buf
// does not yet hold a complete record (a legitimate crash tail, not
// necessarily an error the caller should report). ErrChecksumMismatch
// means a complete record was read but its contents don't match its
// checksum.
func Decode(buf []byte) (Record, int, error) {
	if len(buf) < headerSize {
		return Record{}, 0, ErrTruncated
	}
	timestampUs := int64(binary.LittleEndian.Uint64(buf[0:8]))
	typ := RecordType(buf[8])
	sequence := binary.LittleEndian.Uint64(buf[9:17])
	storedChecksum := binary.LittleEndian.Uint32(buf[17:21])
	dataLength := binary.LittleEndian.Uint32(buf[21:25])

	total := headerSize + int(dataLength)
	if len(buf) < total {
		return Record{}, 0, ErrTruncated
	}
	payload := buf[headerSize:total]

	got := checksum(timestampUs, typ, sequence, dataLength, payload)
	if got != storedChecksum {
		return Record{}, total, ErrChecksumMismatch
	}

	payloadCopy := make([]byte, len(payload))
	copy(payloadCopy, payload)
	return Record{
		TimestampUs: timestampUs,
		Type:        typ,
		Sequence:    sequence,
		Payload:     payloadCopy,
	}, total, nil
}
