// Package datasource records and replays simulator frame captures.
//
// A capture file is one JSON frame per line, exactly as received from
// the socket. Captures make the viewer usable offline and let a live
// session in one process stream into a viewer in another.
package datasource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Recorder appends inbound frames to a capture file.
type Recorder struct {
	mu sync.Mutex
	f  *os.File
}

// NewRecorder opens (or creates) a capture file for appending.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	return &Recorder{f: f}, nil
}

// Record appends one frame as a single line. Frames that are not valid
// JSON are rejected so the capture stays line-parseable.
func (r *Recorder) Record(frame []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, frame); err != nil {
		return fmt.Errorf("record frame: %w", err)
	}
	buf.WriteByte('\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("record frame: %w", err)
	}
	return nil
}

// Close flushes and closes the capture file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
