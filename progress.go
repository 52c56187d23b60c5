package wad

// ProgressEvent represents a progress update during packing or extraction.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry currently being processed, if applicable.
	Path string

	// FilesDone is the number of files completed in the current stage.
	FilesDone int

	// FilesTotal is the total number of files in the current stage.
	FilesTotal int
}

// Percent returns the stage completion scaled to 0..100.
// A stage with no files reports 100 once it is reached, and StageDone
// always reports 100.
func (e ProgressEvent) Percent() int {
	if e.Stage == StageDone {
		return 100
	}
	if e.FilesTotal <= 0 {
		if e.FilesDone > 0 {
			return 100
		}
		return 0
	}
	p := e.FilesDone * 100 / e.FilesTotal
	return min(max(p, 0), 100)
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for packing and extraction.
const (
	// StageReading indicates an archive header and table are being validated.
	StageReading ProgressStage = iota

	// StageCollecting indicates source files are being enumerated and loaded.
	StageCollecting

	// StagePacking indicates payloads are being written into an archive.
	StagePacking

	// StageExtracting indicates entries are being written to disk.
	StageExtracting

	// StageDone indicates the operation finished.
	StageDone
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageReading:
		return "reading"
	case StageCollecting:
		return "collecting"
	case StagePacking:
		return "packing"
	case StageExtracting:
		return "extracting"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}
