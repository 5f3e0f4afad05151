package eventsink

import "log"

// LogSink writes events to the standard logger, with an emoji per severity
// for at-a-glance scanning.
type LogSink struct{}

// OnConfig implements Sink.
func (LogSink) OnConfig(runID, outputCfg, inputCfg string) {
	log.Printf("🔧 [%s] streams configured: output(%s) input(%s)", runID, outputCfg, inputCfg)
}

// OnDetecting implements Sink.
func (LogSink) OnDetecting(runID string) {
	log.Printf("🔍 [%s] detecting delay...", runID)
}

// OnCompleted implements Sink.
func (LogSink) OnCompleted(runID, outputPath string, rc int, avgDelayMs float64, top3 []CandidatePair) {
	if rc != 0 {
		log.Printf("⚠️  [%s] completed with encoder rc=%d, delay=%.2fms, output=%s", runID, rc, avgDelayMs, outputPath)
		return
	}
	log.Printf("✅ [%s] completed: delay=%.2fms, output=%s, top3=%v", runID, avgDelayMs, outputPath, top3)
}

// OnError implements Sink.
func (LogSink) OnError(runID, message string, code int) {
	log.Printf("❌ [%s] error (code=%d): %s", runID, code, message)
}
