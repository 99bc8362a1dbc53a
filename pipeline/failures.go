package pipeline

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/teranos/shopper/errors"
)

// BatchFailure is one line of a failure report
type BatchFailure struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Batch     int       `json:"batch"`
	RecordIDs []string  `json:"record_ids"`
	Error     string    `json:"error"`
	Time      time.Time `json:"time"`
}

// FailureReportPath names the failure report that sits next to a stage output.
func FailureReportPath(output string) string {
	return output + ".failed.jsonl"
}

// FailureLog appends BatchFailure lines to a JSONL file.
// The file is created on the first failure, so clean runs leave nothing behind.
type FailureLog struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewFailureLog prepares a failure report at path
func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

// Record appends one failure
func (l *FailureLog) Record(f BatchFailure) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrapf(err, "failed to open failure report %s", l.path)
		}
		l.file = file
	}

	if f.Time.IsZero() {
		f.Time = time.Now().UTC()
	}
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to encode failure")
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return errors.Wrapf(err, "failed to append to %s", l.path)
	}
	return nil
}

// Path returns the report location
func (l *FailureLog) Path() string { return l.path }

// Close closes the report if it was ever opened
func (l *FailureLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
