// Package archive persists the operator console's decision history to
// disk as zstd-compressed NDJSON: compress on write, stream-decode on
// read, one JSON object per line.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/strongdm/execwall/internal/live"
)

// WriteSnapshot zstd-compresses entries as newline-delimited JSON and
// writes them to path, creating or truncating the file.
func WriteSnapshot(path string, entries []live.LogEntry) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("archive: create %s: %w", path, err)
	}
	defer f.Close()

	n, err := WriteTo(f, entries)
	if err != nil {
		return n, err
	}
	return n, nil
}

// WriteTo is WriteSnapshot without the file-creation step, for callers
// (e.g. an HTTP export handler) that already hold a writer.
func WriteTo(w io.Writer, entries []live.LogEntry) (int, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("archive: new zstd writer: %w", err)
	}

	written := 0
	enc := json.NewEncoder(zw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			zw.Close()
			return written, fmt.Errorf("archive: encode entry: %w", err)
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("archive: close zstd writer: %w", err)
	}
	return written, nil
}

// ReadSnapshot decompresses and parses a file written by WriteSnapshot.
func ReadSnapshot(path string) ([]live.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadFrom(f)
}

// ReadFrom is ReadSnapshot without the file-open step.
func ReadFrom(r io.Reader) ([]live.LogEntry, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("archive: new zstd reader: %w", err)
	}
	defer zr.Close()

	var entries []live.LogEntry
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry live.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return entries, fmt.Errorf("archive: decode entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("archive: scan: %w", err)
	}
	return entries, nil
}
