package metrics

// Recorder is the instrumentation surface used by the engine, the queue and
// the status webhook.
type Recorder interface {
	// RecordDraw counts a draw by outcome (assigned, already_picked,
	// no_candidates, unsatisfiable, not_found, error).
	RecordDraw(outcome string)
	// RecordDrawRetry counts a commit lost to a concurrent draw.
	RecordDrawRetry()
	// RecordSend counts a queue send by result (sent, failed, disabled).
	// log_failed is recorded on top of the result when the delivery log row
	// could not be written.
	RecordSend(result string)
	// RecordStatusCallback counts a delivery status update by outcome
	// (applied, ignored, unknown).
	RecordStatusCallback(outcome string)
	// SetLastBatch records how many entries the last drain attempted.
	SetLastBatch(n int)
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordDraw(string)           {}
func (Nop) RecordDrawRetry()            {}
func (Nop) RecordSend(string)           {}
func (Nop) RecordStatusCallback(string) {}
func (Nop) SetLastBatch(int)            {}
