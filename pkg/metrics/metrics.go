// Package metrics provides counters for backup and restore operations.
package metrics

import (
	"sync/atomic"

	"github.com/snapvault/snapvault/pkg/plog"
)

// Metrics defines the interface for collecting operation statistics.
type Metrics interface {
	AddFilesMatched(n int64)
	AddFilesArchived(n int64)
	AddFilesFailed(n int64)
	AddFilesRestored(n int64)
	AddFilesSkipped(n int64)
	AddBytesRead(n int64)
	AddBytesWritten(n int64)
	Log()
}

// OpMetrics holds the atomic counters for a single backup or restore run.
// It is the concrete implementation of the Metrics interface.
type OpMetrics struct {
	FilesMatched  atomic.Int64
	FilesArchived atomic.Int64
	FilesFailed   atomic.Int64
	FilesRestored atomic.Int64
	FilesSkipped  atomic.Int64
	BytesRead     atomic.Int64
	BytesWritten  atomic.Int64
}

func (m *OpMetrics) AddFilesMatched(n int64)  { m.FilesMatched.Add(n) }
func (m *OpMetrics) AddFilesArchived(n int64) { m.FilesArchived.Add(n) }
func (m *OpMetrics) AddFilesFailed(n int64)   { m.FilesFailed.Add(n) }
func (m *OpMetrics) AddFilesRestored(n int64) { m.FilesRestored.Add(n) }
func (m *OpMetrics) AddFilesSkipped(n int64)  { m.FilesSkipped.Add(n) }
func (m *OpMetrics) AddBytesRead(n int64)     { m.BytesRead.Add(n) }
func (m *OpMetrics) AddBytesWritten(n int64)  { m.BytesWritten.Add(n) }

// Log prints a summary of the operation.
func (m *OpMetrics) Log() {
	plog.Info("SUM",
		"filesMatched", m.FilesMatched.Load(),
		"filesArchived", m.FilesArchived.Load(),
		"filesFailed", m.FilesFailed.Load(),
		"filesRestored", m.FilesRestored.Load(),
		"filesSkipped", m.FilesSkipped.Load(),
		"bytesRead", m.BytesRead.Load(),
		"bytesWritten", m.BytesWritten.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
// It can be used to disable metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesMatched(n int64)  {}
func (m *NoopMetrics) AddFilesArchived(n int64) {}
func (m *NoopMetrics) AddFilesFailed(n int64)   {}
func (m *NoopMetrics) AddFilesRestored(n int64) {}
func (m *NoopMetrics) AddFilesSkipped(n int64)  {}
func (m *NoopMetrics) AddBytesRead(n int64)     {}
func (m *NoopMetrics) AddBytesWritten(n int64)  {}
func (m *NoopMetrics) Log()                     {}

// Statically assert that our types implement the interface.
var _ Metrics = (*OpMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
