package partialzip

import "github.com/meigma/partialzip/internal/ziptype"

// Re-export progress types.
type (
	// ProgressEvent represents a progress update during List or Download.
	ProgressEvent = ziptype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = ziptype.ProgressStage

	// ProgressFunc receives progress updates during operations.
	// It is called from the goroutine running the operation.
	ProgressFunc = ziptype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageFetchingTail indicates the archive tail is being fetched.
	StageFetchingTail = ziptype.StageFetchingTail

	// StageFetchingDirectory indicates the central directory is being fetched.
	StageFetchingDirectory = ziptype.StageFetchingDirectory

	// StageFetchingHeader indicates the entry's local header is being fetched.
	StageFetchingHeader = ziptype.StageFetchingHeader

	// StageDownloading indicates compressed payload bytes are being received.
	StageDownloading = ziptype.StageDownloading

	// StageVerified indicates the decoded content passed its size and CRC32 checks.
	StageVerified = ziptype.StageVerified
)
