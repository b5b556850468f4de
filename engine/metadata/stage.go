package metadata

import "time"

// FileStage tracks one file through a simplification.
type FileStage uint8

const (
	FileStagePending FileStage = iota
	FileStageLoaded
	FileStageDecimated
	FileStageWritten
	FileStageDone
	FileStageFailed
)

func (s FileStage) String() string {
	switch s {
	case FileStagePending:
		return "pending"
	case FileStageLoaded:
		return "loaded"
	case FileStageDecimated:
		return "decimated"
	case FileStageWritten:
		return "written"
	case FileStageDone:
		return "done"
	case FileStageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SimplifyResult describes the outcome of one simplification.
type SimplifyResult struct {
	InputPath     string
	OutputPath    string
	Ratio         float64
	Stage         FileStage
	TrianglesIn   int
	TrianglesOut  int
	VerticesIn    int
	VerticesOut   int
	Elapsed       time.Duration
	InputEncoding Encoding
}
