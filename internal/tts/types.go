package tts

// EngineType represents the synthesis engine selection
type EngineType string

const (
	// EngineCartesia represents the Cartesia HTTP synthesis API
	EngineCartesia EngineType = "cartesia"

	// EngineMock represents the offline mock engine
	EngineMock EngineType = "mock"

	// EngineNone represents no engine selected
	EngineNone EngineType = ""
)

// State represents the current step of a pipeline run
type State int

const (
	// StateIdle indicates the run has not started
	StateIdle State = iota

	// StateAnnotating indicates the annotator stream is being opened
	StateAnnotating

	// StateCacheLookup indicates a segment's audio key is being looked up
	StateCacheLookup

	// StateCacheHit indicates a segment is served from the audio cache
	StateCacheHit

	// StateSynthesizing indicates the synthesizer is being called
	StateSynthesizing

	// StateStreaming indicates synthesized chunks are being delivered
	StateStreaming

	// StateCachePersist indicates a rendered segment is being recorded
	StateCachePersist

	// StateDone indicates every segment was delivered
	StateDone

	// StateFailed indicates the run aborted
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnnotating:
		return "annotating"
	case StateCacheLookup:
		return "cache-lookup"
	case StateCacheHit:
		return "cache-hit"
	case StateSynthesizing:
		return "synthesizing"
	case StateStreaming:
		return "streaming"
	case StateCachePersist:
		return "cache-persist"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a successful pipeline run.
type Result struct {
	// Chunks holds every delivered audio chunk in order.
	Chunks [][]byte

	// Segments holds the text of each segment, as sent to synthesis.
	Segments []string

	// CacheHits and CacheMisses count segments by audio cache outcome.
	CacheHits   int
	CacheMisses int
}

// Bytes returns all chunks joined.
func (r *Result) Bytes() []byte {
	n := 0
	for _, c := range r.Chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range r.Chunks {
		out = append(out, c...)
	}
	return out
}
