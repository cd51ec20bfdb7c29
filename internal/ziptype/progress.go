package ziptype

// ProgressEvent represents a progress update during a List or Download call.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Name is the entry being downloaded, if applicable.
	Name string

	// BytesDone is the number of bytes transferred in the current stage.
	BytesDone uint64

	// BytesTotal is the total bytes expected for the current stage.
	// Zero indicates the total is unknown.
	BytesTotal uint64
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages in the order a download visits them.
const (
	// StageFetchingTail indicates the archive tail is being fetched.
	StageFetchingTail ProgressStage = iota

	// StageFetchingDirectory indicates the central directory is being fetched.
	StageFetchingDirectory

	// StageFetchingHeader indicates the entry's local header is being fetched.
	StageFetchingHeader

	// StageDownloading indicates compressed payload bytes are being received.
	StageDownloading

	// StageVerified indicates the decoded content passed its size and CRC32 checks.
	StageVerified
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageFetchingTail:
		return "fetching tail"
	case StageFetchingDirectory:
		return "fetching directory"
	case StageFetchingHeader:
		return "fetching header"
	case StageDownloading:
		return "downloading"
	case StageVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// It is called from the goroutine running the operation.
type ProgressFunc func(ProgressEvent)
