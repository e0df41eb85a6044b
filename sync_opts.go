package bundle

// SyncMode selects how SyncTo decides whether a file is up to date.
type SyncMode uint8

const (
	// SyncHash compares 128-bit content fingerprints of the target file
	// and the entry. It rewrites only files whose content differs.
	SyncHash SyncMode = iota

	// SyncFast treats a file as up to date when its size and modification
	// time (to the second) match the entry. Content is not read.
	SyncFast
)

func (m SyncMode) String() string {
	switch m {
	case SyncHash:
		return "hash"
	case SyncFast:
		return "fast"
	default:
		return "unknown"
	}
}

const (
	// DefaultSpoolThreshold is the largest entry SyncHash buffers in memory
	// while fingerprinting. Larger entries spool to a temporary file.
	DefaultSpoolThreshold = 4 << 20

	// DefaultReadAheadBytes is the memory budget for entries buffered ahead
	// of parallel workers.
	DefaultReadAheadBytes = 64 << 20
)

// SyncOption configures SyncTo.
type SyncOption func(*syncConfig)

type syncConfig struct {
	workers        int
	readAheadBytes uint64
	spoolThreshold uint64
}

// SyncWithWorkers sets the number of workers reconciling files.
// Values <= 1 reconcile entries one at a time in stream order.
//
// With more than one worker, entry content is read ahead into memory within
// the read-ahead budget and reconciled concurrently. Entries larger than
// the budget are reconciled inline.
func SyncWithWorkers(n int) SyncOption {
	return func(cfg *syncConfig) {
		cfg.workers = n
	}
}

// SyncWithReadAheadBytes caps the memory used for entries buffered ahead of
// parallel workers. Zero uses DefaultReadAheadBytes.
func SyncWithReadAheadBytes(limit uint64) SyncOption {
	return func(cfg *syncConfig) {
		cfg.readAheadBytes = limit
	}
}

// SyncWithSpoolThreshold sets the largest entry SyncHash fingerprints in
// memory. Zero uses DefaultSpoolThreshold.
func SyncWithSpoolThreshold(limit uint64) SyncOption {
	return func(cfg *syncConfig) {
		cfg.spoolThreshold = limit
	}
}
