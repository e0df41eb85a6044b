package bundle

import "github.com/meigma/bundle/internal/blobtype"

// Re-export progress types.
type (
	// ProgressEvent represents a progress update during build, extract, or sync.
	ProgressEvent = blobtype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = blobtype.ProgressStage

	// ProgressFunc receives progress updates during operations.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = blobtype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageEnumerating indicates source folders are being walked.
	StageEnumerating = blobtype.StageEnumerating

	// StageWriting indicates entries are being written to a container.
	StageWriting = blobtype.StageWriting

	// StageExtracting indicates a single entry is being extracted.
	StageExtracting = blobtype.StageExtracting

	// StageSyncing indicates entries are being reconciled with a directory.
	StageSyncing = blobtype.StageSyncing
)
