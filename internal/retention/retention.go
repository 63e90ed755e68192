// Package retention prunes archived recordings: age-based expiry plus a
// disk cap enforced oldest-first.
package retention

import (
	"sort"
	"time"

	"github.com/salestag/stag/internal/archive"
	"github.com/salestag/stag/internal/config"
	"github.com/salestag/stag/internal/ledger"
)

// PruneAged deletes archived recordings whose transfers completed more
// than retention_days ago and clears their ledger references. Returns
// count of objects deleted.
func PruneAged(st *archive.Store, led *ledger.Store, cfg *config.Config) (int, error) {
	if cfg == nil || cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := float64(time.Now().AddDate(0, 0, -cfg.RetentionDays).UnixNano()) / 1e9

	hashes, err := led.ArchivedBefore(cutoff)
	if err != nil {
		return 0, err
	}
	var deleted int
	for _, h := range hashes {
		if err := st.Remove(h); err != nil {
			return deleted, err
		}
		if err := led.ClearArchive(h); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// PruneToCap deletes oldest archived objects until the archive fits
// under archive_disk_cap_gb. Returns count of objects deleted.
func PruneToCap(st *archive.Store, led *ledger.Store, cfg *config.Config) (int, error) {
	if cfg == nil || cfg.ArchiveDiskCapGB <= 0 {
		return 0, nil
	}
	capBytes := int64(cfg.ArchiveDiskCapGB * 1024 * 1024 * 1024)

	objs, err := st.Objects()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, o := range objs {
		total += o.Size
	}
	if total <= capBytes {
		return 0, nil
	}

	// Oldest first
	sort.Slice(objs, func(i, j int) bool { return objs[i].ModTime < objs[j].ModTime })

	var deleted int
	for _, o := range objs {
		if total <= capBytes {
			break
		}
		if err := st.Remove(o.SHA256); err != nil {
			return deleted, err
		}
		if err := led.ClearArchive(o.SHA256); err != nil {
			return deleted, err
		}
		total -= o.Size
		deleted++
	}
	return deleted, nil
}

// Run applies age pruning then cap pruning. Returns total deletions.
func Run(st *archive.Store, led *ledger.Store, cfg *config.Config) (int, error) {
	aged, err := PruneAged(st, led, cfg)
	if err != nil {
		return aged, err
	}
	capped, err := PruneToCap(st, led, cfg)
	return aged + capped, err
}
