// stag-emit: frame emitter for stag.
// Replays a recording container into the frame spool the way the device
// sends it over BLE: FILE header, fixed-size data chunks, END sentinel.
// Stands in for the wireless bridge in tests and demos.
// No-op if .paused exists.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/salestag/stag/internal/config"
	"github.com/salestag/stag/internal/spool"
)

func isPaused(cfg *config.Config) bool {
	_, err := os.Stat(filepath.Join(filepath.Dir(cfg.DbPath), ".paused"))
	return err == nil
}

// buildFrames builds the notification payload sequence for one container.
// dropChunk >= 0 omits that data chunk, simulating a lost notification.
func buildFrames(name string, data []byte, chunkSize, dropChunk int) [][]byte {
	payloads := [][]byte{
		[]byte(fmt.Sprintf("FILE:%s:%d", name, len(data))),
	}
	chunk := 0
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if chunk != dropChunk {
			payloads = append(payloads, data[off:end])
		}
		chunk++
	}
	return append(payloads, []byte("END"))
}

func main() {
	var (
		chunkSize = flag.Int("chunk", 240, "data chunk size in bytes")
		dropChunk = flag.Int("drop", -1, "drop the Nth data chunk (corruption injection)")
		name      = flag.String("name", "", "declared filename (default: basename of file)")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stag-emit [flags] <container-file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag-emit: %v\n", err)
		os.Exit(1)
	}
	if isPaused(cfg) {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag-emit: %v\n", err)
		os.Exit(1)
	}
	declared := *name
	if declared == "" {
		declared = filepath.Base(path)
	}

	framesPath := spool.FramesPath(cfg.SpoolDir)
	last, err := spool.LastSeq(framesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag-emit: %v\n", err)
		os.Exit(1)
	}

	payloads := buildFrames(declared, data, *chunkSize, *dropChunk)
	if _, err := spool.Append(framesPath, last+1, payloads); err != nil {
		fmt.Fprintf(os.Stderr, "stag-emit: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Emitted %d frames for %s (%d bytes).\n", len(payloads), declared, len(data))
}
