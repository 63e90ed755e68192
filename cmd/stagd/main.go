// stagd: receiver daemon for stag.
// Tails the frame spool, reassembles transfers, analyzes and archives
// completed recordings, uploads the ones that pass.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/salestag/stag/internal/archive"
	"github.com/salestag/stag/internal/config"
	"github.com/salestag/stag/internal/db"
	"github.com/salestag/stag/internal/frame"
	"github.com/salestag/stag/internal/integrity"
	"github.com/salestag/stag/internal/ledger"
	"github.com/salestag/stag/internal/retention"
	"github.com/salestag/stag/internal/spool"
	"github.com/salestag/stag/internal/transfer"
	"github.com/salestag/stag/internal/upload"
)

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "stagd.pid")
}

func writePid(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0644)
}

// pipeline receives transfer outcomes and runs the post-transfer steps:
// inbox write, analysis, archive, ledger, upload gate.
type pipeline struct {
	cfg     *config.Config
	ledger  *ledger.Store
	archive *archive.Store
	sink    upload.Sink
}

func (p *pipeline) TransferComplete(c transfer.Completed) {
	if c.SizeMismatch {
		fmt.Fprintf(os.Stderr, "stagd: size mismatch for %s: declared %d, received %d\n",
			c.Filename, c.DeclaredSize, len(c.Data))
	}
	fmt.Fprintf(os.Stderr, "stagd: transfer complete: %s (%d bytes, %.0f B/s)\n",
		c.Filename, len(c.Data), c.BytesPerSec)

	inboxPath := filepath.Join(p.cfg.InboxDir, c.Filename)
	if err := os.MkdirAll(p.cfg.InboxDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "stagd: create inbox dir: %v\n", err)
	} else if err := os.WriteFile(inboxPath, c.Data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "stagd: write inbox: %v\n", err)
	}

	report := integrity.Analyze(c.Data)
	verdict := ledger.VerdictCorrupted
	if report.OverallValid {
		verdict = ledger.VerdictValid
	}
	fmt.Fprintf(os.Stderr, "stagd: analysis of %s: valid=%v issues=%d\n",
		c.Filename, report.OverallValid, report.IssueCount)

	sha, _, err := p.archive.Put(c.Data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stagd: archive: %v\n", err)
		sha = ""
	}

	id, err := p.ledger.Insert(ledger.Transfer{
		Filename:      c.Filename,
		DeclaredSize:  c.DeclaredSize,
		ReceivedSize:  int64(len(c.Data)),
		ElapsedMs:     c.Elapsed.Milliseconds(),
		BytesPerSec:   c.BytesPerSec,
		Outcome:       ledger.OutcomeComplete,
		Verdict:       verdict,
		IssueCount:    report.IssueCount,
		ArchiveSHA256: sha,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stagd: ledger: %v\n", err)
		return
	}

	// Upload gate: the analyzer is the authority on usability.
	if report.OverallValid && p.cfg.Upload.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		key := "recordings/" + c.Filename
		if err := p.sink.Put(ctx, key, c.Data); err != nil {
			fmt.Fprintf(os.Stderr, "stagd: upload %s: %v\n", key, err)
			return
		}
		if err := p.ledger.MarkUploaded(id); err != nil {
			fmt.Fprintf(os.Stderr, "stagd: ledger: %v\n", err)
		}
	}
}

func (p *pipeline) TransferIncomplete(inc transfer.Incomplete) {
	fmt.Fprintf(os.Stderr, "stagd: incomplete transfer: %s (%d of %d bytes, %s)\n",
		inc.Filename, inc.BytesReceived, inc.DeclaredSize, inc.Reason)
	if _, err := p.ledger.Insert(ledger.Transfer{
		Filename:     inc.Filename,
		DeclaredSize: inc.DeclaredSize,
		ReceivedSize: inc.BytesReceived,
		Outcome:      ledger.OutcomeIncomplete,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "stagd: ledger: %v\n", err)
	}
}

func (p *pipeline) StrayData(n int) {
	fmt.Fprintf(os.Stderr, "stagd: ignoring %d-byte data frame with no open transfer\n", n)
}

func cursorPath(spoolDir string) string {
	return filepath.Join(spoolDir, ".cursor")
}

func readCursor(path string) uint64 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func writeCursor(path string, seq uint64) {
	_ = os.WriteFile(path, []byte(strconv.FormatUint(seq, 10)), 0644)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("stagd: " + err.Error() + "\n")
		os.Exit(1)
	}

	conn, err := db.Open(cfg.DbPath)
	if err != nil {
		os.Stderr.WriteString("stagd: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer conn.Close()

	key, err := cfg.ArchiveKey()
	if err != nil {
		os.Stderr.WriteString("stagd: " + err.Error() + "\n")
		os.Exit(1)
	}
	store, err := archive.New(cfg.ArchiveDir, key)
	if err != nil {
		os.Stderr.WriteString("stagd: " + err.Error() + "\n")
		os.Exit(1)
	}

	var sink upload.Sink = upload.NopSink{}
	if cfg.Upload.Enabled() {
		s3sink, err := upload.NewS3Sink(context.Background(), upload.S3Config{
			Bucket:    cfg.Upload.Bucket,
			Prefix:    cfg.Upload.Prefix,
			Region:    cfg.Upload.Region,
			Endpoint:  cfg.Upload.Endpoint,
			PathStyle: cfg.Upload.PathStyle,
			AccessKey: cfg.Upload.AccessKey,
			SecretKey: cfg.Upload.SecretKey,
		})
		if err != nil {
			os.Stderr.WriteString("stagd: " + err.Error() + "\n")
			os.Exit(1)
		}
		sink = upload.NewRetrySink(s3sink, upload.DefaultRetryConfig())
	}

	dataDir := filepath.Dir(cfg.DbPath)
	if err := writePid(pidPath(dataDir)); err != nil {
		os.Stderr.WriteString("stagd: cannot write pid file: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer os.Remove(pidPath(dataDir))

	led := ledger.New(conn)
	receiver := transfer.NewReceiver(&pipeline{
		cfg:     cfg,
		ledger:  led,
		archive: store,
		sink:    sink,
	})

	framesPath := spool.FramesPath(cfg.SpoolDir)
	cursor := cursorPath(cfg.SpoolDir)
	afterSeq := readCursor(cursor)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	pruneTick := time.NewTicker(time.Hour)
	defer pruneTick.Stop()

	for {
		select {
		case <-tick.C:
			payloads, err := spool.Read(framesPath, afterSeq)
			if err != nil {
				fmt.Fprintf(os.Stderr, "stagd: spool: %v\n", err)
				continue
			}
			// One frame handled to completion before the next is accepted.
			for _, p := range payloads {
				receiver.Handle(frame.Classify(p.Data))
				afterSeq = p.Seq
			}
			if len(payloads) > 0 {
				writeCursor(cursor, afterSeq)
			}
		case <-pruneTick.C:
			if n, err := retention.Run(store, led, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "stagd: retention: %v\n", err)
			} else if n > 0 {
				fmt.Fprintf(os.Stderr, "stagd: retention pruned %d archived recordings\n", n)
			}
		case sig := <-sigs:
			fmt.Fprintf(os.Stderr, "stagd: %v, shutting down\n", sig)
			// Force-finalize any in-flight transfer before exit.
			receiver.Close()
			writeCursor(cursor, afterSeq)
			return
		}
	}
}
