package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/lhlRahman/vector-database/vector"
)

// InsertPayload is the decoded body of an INSERT or UPDATE record: both
// share the same wire shape, since an update is simply a later write to
// the same key.
type InsertPayload struct {
	Key      string
	Vector   vector.Vector
	Metadata []byte
}

// EncodeInsert serializes an INSERT/UPDATE payload:
// len32 key | key | dims32 | D x f32 | len32 metadata | metadata.
func EncodeInsert(p InsertPayload) []byte {
	keyBytes := []byte(p.Key)
	vecBytes := p.Vector.Bytes()

	out := make([]byte, 0, 4+len(keyBytes)+4+len(vecBytes)+4+len(p.Metadata))
	out = appendUint32Prefixed(out, keyBytes)
	out = appendUint32(out, uint32(p.Vector.Dim()))
	out = append(out, vecBytes...)
	out = appendUint32Prefixed(out, p.Metadata)
	return out
}

// DecodeInsert parses an INSERT/UPDATE payload.
func DecodeInsert(payload []byte) (InsertPayload, error) {
	key, rest, err := readUint32Prefixed(payload)
	if err != nil {
		return InsertPayload{}, fmt.Errorf("wal: decode insert key: %w", err)
	}
	dims, rest, err := readUint32(rest)
	if err != nil {
		return InsertPayload{}, fmt.Errorf("wal: decode insert dims: %w", err)
	}
	vecByteLen := int(dims) * 4
	if len(rest) < vecByteLen {
		return InsertPayload{}, ErrTruncated
	}
	v, err := vector.FromBytes(rest[:vecByteLen])
	if err != nil {
		return InsertPayload{}, fmt.Errorf("wal: decode insert vector: %w", err)
	}
	rest = rest[vecByteLen:]
	metadata, rest, err := readUint32Prefixed(rest)
	if err != nil {
		return InsertPayload{}, fmt.Errorf("wal: decode insert metadata: %w", err)
	}
	_ = rest
	return InsertPayload{Key: string(key), Vector: v, Metadata: nilIfEmpty(metadata)}, nil
}

// DeletePayload is the decoded body of a DELETE record.
type DeletePayload struct {
	Key string
}

// EncodeDelete serializes a DELETE payload: len32 key | key.
func EncodeDelete(p DeletePayload) []byte {
	return appendUint32Prefixed(nil, []byte(p.Key))
}

// DecodeDelete parses a DELETE payload.
func DecodeDelete(payload []byte) (DeletePayload, error) {
	key, _, err := readUint32Prefixed(payload)
	if err != nil {
		return DeletePayload{}, fmt.Errorf("wal: decode delete key: %w", err)
	}
	return DeletePayload{Key: string(key)}, nil
}

// CheckpointPayload is the decoded body of a CHECKPOINT record.
type CheckpointPayload struct {
	SnapshotSequence uint64
	Path             string
}

// EncodeCheckpoint serializes a CHECKPOINT payload:
// u64 snapshot_sequence | len32 path | path.
func EncodeCheckpoint(p CheckpointPayload) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, p.SnapshotSequence)
	return appendUint32Prefixed(out, []byte(p.Path))
}

// DecodeCheckpoint parses a CHECKPOINT payload.
func DecodeCheckpoint(payload []byte) (CheckpointPayload, error) {
	if len(payload) < 8 {
		return CheckpointPayload{}, ErrTruncated
	}
	seq := binary.LittleEndian.Uint64(payload[:8])
	path, _, err := readUint32Prefixed(payload[8:])
	if err != nil {
		return CheckpointPayload{}, fmt.Errorf("wal: decode checkpoint path: %w", err)
	}
	return CheckpointPayload{SnapshotSequence: seq, Path: string(path)}, nil
}

func appendUint32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}

func appendUint32Prefixed(out []byte, data []byte) []byte {
	out = appendUint32(out, uint32(len(data)))
	return append(out, data...)
}

func readUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrTruncated
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func readUint32Prefixed(buf []byte) ([]byte, []byte, error) {
	n, rest, err := readUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, ErrTruncated
	}
	return rest[:n], rest[n:], nil
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
