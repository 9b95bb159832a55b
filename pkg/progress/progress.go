// Package progress turns a long-running backup into a bounded stream of
// stage events a consumer can drain at its own pace.
package progress

import (
	"fmt"
)

// Stage identifies a phase of a backup run. Stages are emitted in order;
// completed and failed are terminal.
type Stage string

const (
	StageDiscovery   Stage = "discovery"
	StagePreparation Stage = "preparation"
	StageWriting     Stage = "writing"
	StageFinalizing  Stage = "finalizing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// Percent bands per stage. Writing interpolates across its band by file
// count; the other stages report the band start.
const (
	discoveryPercent   = 0
	preparationPercent = 10
	writingStart       = 20
	writingEnd         = 90
	finalizingPercent  = 90
	completedPercent   = 100
)

// writeNotifyInterval is how many files may pass between writing events.
// The last file always produces one.
const writeNotifyInterval = 10

// Event is one progress update.
type Event struct {
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
	Percent   int    `json:"percent"`
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

// Reporter produces the event sequence for one backup run. The producer
// blocks once the buffer is full, so a consumer that stops draining also
// stops the work feeding the reporter. Exactly one terminal event is
// emitted, after which the channel is closed.
type Reporter struct {
	events chan Event
	done   bool
}

// NewReporter creates a reporter with the given channel buffer.
// A non-positive buffer gets a small default.
func NewReporter(buffer int) *Reporter {
	if buffer <= 0 {
		buffer = 16
	}
	return &Reporter{events: make(chan Event, buffer)}
}

// Events returns the channel the consumer drains. It is closed after the
// terminal event.
func (r *Reporter) Events() <-chan Event {
	return r.events
}

func (r *Reporter) emit(e Event) {
	if r.done {
		return
	}
	r.events <- e
}

// Discovery reports that file selection has started.
func (r *Reporter) Discovery(message string) {
	r.emit(Event{Stage: StageDiscovery, Message: message, Percent: discoveryPercent})
}

// Preparation reports that metadata is being assembled.
func (r *Reporter) Preparation(message string) {
	r.emit(Event{Stage: StagePreparation, Message: message, Percent: preparationPercent})
}

// Writing reports archive construction. It rate-limits itself: only every
// tenth file or the last one produces an event.
func (r *Reporter) Writing(done, total int, logicalPath string) {
	if done != total && done%writeNotifyInterval != 0 {
		return
	}
	percent := writingStart
	if total > 0 {
		percent += (writingEnd - writingStart) * done / total
	}
	r.emit(Event{
		Stage:   StageWriting,
		Message: fmt.Sprintf("Archiving %s (%d/%d)", logicalPath, done, total),
		Percent: percent,
	})
}

// Finalizing reports that the archive is being flushed and moved into place.
func (r *Reporter) Finalizing(message string) {
	r.emit(Event{Stage: StageFinalizing, Message: message, Percent: finalizingPercent})
}

// Complete emits the terminal success event and closes the stream.
func (r *Reporter) Complete(archivePath string, sizeBytes int64) {
	r.emit(Event{
		Stage:     StageCompleted,
		Message:   fmt.Sprintf("Backup complete: %s (%d bytes)", archivePath, sizeBytes),
		Percent:   completedPercent,
		Completed: true,
	})
	r.close()
}

// Fail emits the terminal failure event and closes the stream.
func (r *Reporter) Fail(err error) {
	r.emit(Event{
		Stage:     StageFailed,
		Message:   "Backup failed",
		Percent:   completedPercent,
		Completed: true,
		Error:     err.Error(),
	})
	r.close()
}

func (r *Reporter) close() {
	if r.done {
		return
	}
	r.done = true
	close(r.events)
}
