// stag: CLI for the SalesTag host receiver.
// Commands: status, pause, resume, analyze, ls, prune.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"github.com/salestag/stag/internal/archive"
	"github.com/salestag/stag/internal/config"
	"github.com/salestag/stag/internal/db"
	"github.com/salestag/stag/internal/integrity"
	"github.com/salestag/stag/internal/ledger"
	"github.com/salestag/stag/internal/retention"
	"github.com/salestag/stag/internal/spool"
)

func pausedFile(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DbPath), ".paused")
}

func pidFile(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DbPath), "stagd.pid")
}

func daemonRunning(cfg *config.Config) bool {
	b, err := os.ReadFile(pidFile(cfg))
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return false
	}
	// Signal 0 checks if process exists (Unix)
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	return true
}

func mustConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdStatus() {
	cfg := mustConfig()

	daemon := "not running"
	if daemonRunning(cfg) {
		daemon = "running"
	}
	capture := "on"
	if _, err := os.Stat(pausedFile(cfg)); err == nil {
		capture = "paused"
	}

	fmt.Printf("stag status\n")
	fmt.Printf("  daemon:  %s\n", daemon)
	fmt.Printf("  emitter: %s\n", capture)
	fmt.Printf("  spool:   %s\n", cfg.SpoolDir)
	fmt.Printf("  inbox:   %s\n", cfg.InboxDir)
	fmt.Printf("  archive: %s\n", cfg.ArchiveDir)
	fmt.Printf("  db:      %s\n", cfg.DbPath)

	if last, err := spool.LastSeq(spool.FramesPath(cfg.SpoolDir)); err == nil && last > 0 {
		fmt.Printf("  frames:  %d spooled\n", last)
	}

	conn, err := db.Open(cfg.DbPath)
	if err != nil {
		return
	}
	defer conn.Close()
	total, valid, corrupted, incomplete, err := ledger.New(conn).Counts()
	if err == nil && total > 0 {
		fmt.Printf("  transfers: %d total, %d valid, %d corrupted, %d incomplete\n",
			total, valid, corrupted, incomplete)
	}
}

func cmdPause() {
	cfg := mustConfig()
	path := pausedFile(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "stag: cannot create %s: %v\n", filepath.Dir(path), err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, []byte{}, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "stag: cannot create pause flag: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Emitter paused.")
}

func cmdResume() {
	cfg := mustConfig()
	if err := os.Remove(pausedFile(cfg)); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "stag: cannot remove pause flag: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Emitter resumed.")
}

func cmdAnalyze(args []string) {
	asJSON := false
	var path string
	for _, a := range args {
		if a == "--json" {
			asJSON = true
			continue
		}
		path = a
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: stag analyze <file> [--json]")
		os.Exit(2)
	}

	report, err := integrity.AnalyzeFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag analyze: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "stag analyze: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(b))
	} else {
		renderReport(path, report)
	}
	if !report.OverallValid {
		os.Exit(1)
	}
}

func renderReport(path string, r *integrity.Report) {
	status := "CORRUPTED"
	if r.OverallValid {
		status = "VALID"
	}
	fmt.Printf("%s: %s (%d bytes, %d issues)\n", path, status, r.FileSize, r.IssueCount)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		t.SetStyle(table.StyleLight)
	}

	t.AppendHeader(table.Row{"Stage", "Field", "Value"})
	h := r.Header
	t.AppendRows([]table.Row{
		{"header", "valid", h.Valid},
		{"header", "magic", fmt.Sprintf("%s (%s)", h.MagicString, h.MagicBytes)},
		{"header", "version", h.Header.Version},
		{"header", "sample rate", h.Header.SampleRate},
		{"header", "total samples", h.Header.TotalSamples},
		{"header", "duration ms", h.DurationMs},
	})
	if s := r.Samples; s != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"samples", "valid", s.Valid},
			{"samples", "count", s.SampleCount},
		})
		if s.Stats != nil {
			t.AppendRows([]table.Row{
				{"samples", "adc range", fmt.Sprintf("%d - %d (expected 0-4095)", s.Stats.Min, s.Stats.Max)},
				{"samples", "adc mean", fmt.Sprintf("%.1f", s.Stats.Mean)},
				{"samples", "unique values", s.Stats.UniqueValues},
			})
		}
	}
	t.Render()

	issues := append([]string{}, r.Header.Issues...)
	if r.Samples != nil {
		issues = append(issues, r.Samples.Issues...)
	}
	for _, issue := range issues {
		fmt.Printf("  ! %s\n", issue)
	}
}

func cmdLs(args []string) {
	n := 20
	for i := 0; i < len(args); i++ {
		if args[i] == "-n" && i+1 < len(args) {
			if v, err := strconv.Atoi(args[i+1]); err == nil && v > 0 {
				n = v
			}
			i++
		}
	}

	cfg := mustConfig()
	conn, err := db.Open(cfg.DbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag ls: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	transfers, err := ledger.New(conn).Recent(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag ls: %v\n", err)
		os.Exit(1)
	}
	if len(transfers) == 0 {
		fmt.Println("No transfers recorded.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		t.SetStyle(table.StyleLight)
	}
	t.AppendHeader(table.Row{"File", "Bytes", "Outcome", "Verdict", "Issues", "Uploaded"})
	for _, tr := range transfers {
		uploaded := ""
		if tr.UploadedAt > 0 {
			uploaded = "yes"
		}
		t.AppendRow(table.Row{
			tr.Filename, tr.ReceivedSize, tr.Outcome, tr.Verdict, tr.IssueCount, uploaded,
		})
	}
	t.Render()
}

func cmdPrune() {
	cfg := mustConfig()
	conn, err := db.Open(cfg.DbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag prune: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	key, err := cfg.ArchiveKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag prune: %v\n", err)
		os.Exit(1)
	}
	store, err := archive.New(cfg.ArchiveDir, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag prune: %v\n", err)
		os.Exit(1)
	}

	deleted, err := retention.Run(store, ledger.New(conn), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stag prune: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Pruned %d archived recordings.\n", deleted)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: stag <command>

commands:
  status             show daemon and spool state
  pause              pause the frame emitter
  resume             resume the frame emitter
  analyze <file>     run corruption analysis on a container [--json]
  ls [-n N]          list recent transfers
  prune              prune archived recordings per retention config`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "status":
		cmdStatus()
	case "pause":
		cmdPause()
	case "resume":
		cmdResume()
	case "analyze":
		cmdAnalyze(os.Args[2:])
	case "ls":
		cmdLs(os.Args[2:])
	case "prune":
		cmdPrune()
	default:
		usage()
	}
}
