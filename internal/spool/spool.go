// Package spool is the handoff point between a wireless bridge process
// and the receiver daemon. Whatever speaks BLE (stag-emit in tests, a
// gateway in production) appends one JSON line per notification payload;
// stagd polls and replays them in sequence order.
package spool

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Entry is one notification payload as spooled.
type Entry struct {
	Seq     uint64 `json:"seq"`
	Payload string `json:"payload"` // base64
}

// Payload is a decoded spool entry.
type Payload struct {
	Seq  uint64
	Data []byte
}

// FramesPath returns the frame spool file inside spoolDir.
func FramesPath(spoolDir string) string {
	return filepath.Join(spoolDir, "frames.jsonl")
}

// Read parses every payload with seq > afterSeq. Invalid lines are
// skipped; a bridge crash must never wedge the daemon. A missing file
// reads as empty.
func Read(framesPath string, afterSeq uint64) ([]Payload, error) {
	f, err := os.Open(framesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Payload
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip invalid lines
		}
		if e.Seq <= afterSeq {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(e.Payload)
		if err != nil {
			continue
		}
		out = append(out, Payload{Seq: e.Seq, Data: data})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", framesPath, err)
	}
	return out, nil
}

// Append writes payloads to the spool, numbering them from nextSeq.
// Returns the next unused sequence number.
func Append(framesPath string, nextSeq uint64, payloads [][]byte) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(framesPath), 0755); err != nil {
		return nextSeq, err
	}
	f, err := os.OpenFile(framesPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nextSeq, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range payloads {
		e := Entry{Seq: nextSeq, Payload: base64.StdEncoding.EncodeToString(p)}
		b, err := json.Marshal(e)
		if err != nil {
			return nextSeq, err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return nextSeq, err
		}
		nextSeq++
	}
	return nextSeq, w.Flush()
}

// LastSeq scans the spool and returns the highest sequence number seen.
func LastSeq(framesPath string) (uint64, error) {
	payloads, err := Read(framesPath, 0)
	if err != nil {
		return 0, err
	}
	var last uint64
	for _, p := range payloads {
		if p.Seq > last {
			last = p.Seq
		}
	}
	return last, nil
}
