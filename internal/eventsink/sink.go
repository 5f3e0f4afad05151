// Package eventsink implements the event sink collaborator: the
// controller calls back on_config/on_detecting/on_completed/on_error as the
// test run progresses. LogSink writes to the standard logger; NATSSink
// publishes the same events as JSON to a NATS subject tree.
package eventsink

import "time"

// CandidatePair is one (delay, correlation) pair from the top-3 delay
// detector results, reported in on_completed.
type CandidatePair struct {
	DelayMs     float64 `json:"delay_ms"`
	Correlation float64 `json:"correlation"`
}

// Sink receives lifecycle events from the controller.
type Sink interface {
	// OnConfig fires once both streams are open, with their negotiated
	// configuration strings ("SR=... CH=... FMT=... MODE=... PERF=... FPB=... BUF=...").
	OnConfig(runID, outputCfg, inputCfg string)
	// OnDetecting fires just before delay detection begins.
	OnDetecting(runID string)
	// OnCompleted fires once after encoding, successful or not.
	OnCompleted(runID, outputPath string, rc int, avgDelayMs float64, top3 []CandidatePair)
	// OnError fires at most once per run.
	OnError(runID, message string, code int)
}

// runEvent is the JSON envelope published by NATSSink; the same shape
// serves every event kind, with irrelevant fields left zero-valued.
type runEvent struct {
	RunID      string           `json:"run_id"`
	Kind       string           `json:"kind"`
	Time       time.Time        `json:"time"`
	OutputCfg  string           `json:"output_cfg,omitempty"`
	InputCfg   string           `json:"input_cfg,omitempty"`
	OutputPath string           `json:"output_path,omitempty"`
	ReturnCode int              `json:"rc,omitempty"`
	AvgDelayMs float64          `json:"avg_delay_ms,omitempty"`
	Top3       []CandidatePair  `json:"top3,omitempty"`
	Message    string           `json:"message,omitempty"`
	ErrorCode  int              `json:"error_code,omitempty"`
}
