package wal

import "os"

// ReadSegment decodes every well-formed record from the front of a
// segment file. It is best-effort by design, matching the crash-tail
// tolerance the format requires: a truncated final record is silently
// dropped, and a checksum failure discards that record and every
// subsequent byte in the file without returning an error. Only genuine
// I/O failures (the file cannot be opened or read at all) are reported.
func ReadSegment(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []Record
	offset := 0
	for offset < len(data) {
		rec, n, err := Decode(data[offset:])
		if err != nil {
			// Truncated tail or checksum failure: both mean "stop
			// reading this file", per the format's crash-recovery
			// contract.
			break
		}
		records = append(records, rec)
		offset += n
	}
	return records, nil
}

// ReadAll decodes every well-formed record from every segment in dir,
// in segment (and therefore chronological) order.
func ReadAll(dir string) ([]Record, error) {
	paths, err := Segments(dir)
	if err != nil {
		return nil, err
	}
	var all []Record
	for _, p := range paths {
		recs, err := ReadSegment(p)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}
