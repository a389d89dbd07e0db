package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentPrefix = "commit.log."

// segmentPath returns the path of segment index n within dir, e.g.
// ".../commit.log.000001".
func segmentPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%06d", segmentPrefix, n))
}

// segmentIndex extracts the six-digit suffix from a segment filename,
// or ok=false if name does not match the commit.log.NNNNNN pattern.
func segmentIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, segmentPrefix) {
		return 0, false
	}
	suffix := strings.TrimPrefix(name, segmentPrefix)
	if len(suffix) != 6 {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// listSegments returns the indexes of every segment file present in dir,
// ascending.
func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var indexes []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := segmentIndex(e.Name()); ok {
			indexes = append(indexes, n)
		}
	}
	sort.Ints(indexes)
	return indexes, nil
}

// Segments returns the full paths of every WAL segment in dir, in
// ascending (and therefore chronological) order.
func Segments(dir string) ([]string, error) {
	indexes, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(indexes))
	for i, n := range indexes {
		paths[i] = segmentPath(dir, n)
	}
	return paths, nil
}
