// Package eventlog defines the wire format shared by both ring buffers:
// a fixed 19-byte header followed by exactly path_len path bytes, with
// no terminator (spec §6).
package eventlog

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed header width preceding path bytes.
const HeaderLen = 19

// Mode tags a record's origin, matching spec §6's wire values.
type Mode uint8

const (
	ModeObserve Mode = 0
	ModeMonitor Mode = 1
	ModeEnforce Mode = 2
)

// Header is the 19-byte fixed-layout prefix of every record.
type Header struct {
	Cgid        uint64
	TrackerID   uint64
	PathLen     uint16
	ModeTag     Mode
}

// Record is a fully assembled event: header plus its path bytes.
type Record struct {
	Header
	Path []byte
}

// MarshalBinary encodes r as exactly HeaderLen+len(Path) bytes,
// little-endian, matching spec §6's wire layout precisely.
func (r Record) MarshalBinary() ([]byte, error) {
	if len(r.Path) != int(r.PathLen) {
		return nil, fmt.Errorf("eventlog: path length %d does not match header PathLen %d", len(r.Path), r.PathLen)
	}
	buf := make([]byte, HeaderLen+len(r.Path))
	binary.LittleEndian.PutUint64(buf[0:8], r.Cgid)
	binary.LittleEndian.PutUint64(buf[8:16], r.TrackerID)
	binary.LittleEndian.PutUint16(buf[16:18], r.PathLen)
	buf[18] = byte(r.ModeTag)
	copy(buf[HeaderLen:], r.Path)
	return buf, nil
}

// UnmarshalRecord decodes a wire-format record, validating that the
// buffer is exactly HeaderLen+path_len bytes long.
func UnmarshalRecord(buf []byte) (Record, error) {
	if len(buf) < HeaderLen {
		return Record{}, fmt.Errorf("eventlog: buffer too short: %d bytes", len(buf))
	}
	h := Header{
		Cgid:      binary.LittleEndian.Uint64(buf[0:8]),
		TrackerID: binary.LittleEndian.Uint64(buf[8:16]),
		PathLen:   binary.LittleEndian.Uint16(buf[16:18]),
		ModeTag:   Mode(buf[18]),
	}
	want := HeaderLen + int(h.PathLen)
	if len(buf) != want {
		return Record{}, fmt.Errorf("eventlog: buffer length %d does not match header-implied length %d", len(buf), want)
	}
	path := make([]byte, h.PathLen)
	copy(path, buf[HeaderLen:])
	return Record{Header: h, Path: path}, nil
}

// NewRecord builds a record from its logical fields, computing PathLen
// from the path itself so callers cannot construct an inconsistent header.
func NewRecord(cgid, trackerID uint64, mode Mode, path string) Record {
	return Record{
		Header: Header{
			Cgid:      cgid,
			TrackerID: trackerID,
			PathLen:   uint16(len(path)),
			ModeTag:   mode,
		},
		Path: []byte(path),
	}
}
