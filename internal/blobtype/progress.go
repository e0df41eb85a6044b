package blobtype

// ProgressEvent represents a progress update during build, extract, or sync.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry currently being processed, if applicable.
	Path string

	// BytesDone is the number of entry bytes completed so far.
	BytesDone uint64

	// FilesDone is the number of entries completed.
	FilesDone int

	// FilesTotal is the total number of entries.
	// Zero indicates the total is unknown (streams carry no index).
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for build, extract, and sync operations.
const (
	// StageEnumerating indicates a source folder is being walked.
	StageEnumerating ProgressStage = iota

	// StageWriting indicates entries are being written to the container.
	StageWriting

	// StageExtracting indicates the container is being scanned for an entry.
	StageExtracting

	// StageSyncing indicates entries are being reconciled with a directory.
	StageSyncing
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageWriting:
		return "writing"
	case StageExtracting:
		return "extracting"
	case StageSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
