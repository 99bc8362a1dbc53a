package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
)

// CountLines returns the number of non-empty lines in path, or 0 when it does not exist.
// A trailing line without a newline still counts.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	count := 0
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			count++
		}
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read %s", path)
		}
	}
}

// Sink appends JSON values to a JSONL file, one per line.
//
// When opened for resume, the sink counts the lines already present and silently
// skips that many writes before appending. Regenerating the same sequence therefore
// continues where the previous run stopped. Stages that produce exactly one artifact
// per input can call Advance to skip inputs without regenerating them.
type Sink struct {
	path     string
	file     *os.File
	existing int
	skip     int
	written  int
	logger   *zap.SugaredLogger
}

// OpenSink opens path for appending. With resume false the file is truncated first.
func OpenSink(path string, resume bool) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create output directory %s", dir)
		}
	}

	log := logger.ComponentLogger("sink").With(logger.FieldOutput, path)

	if !resume {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create %s", path)
		}
		return &Sink{path: path, file: f, logger: log}, nil
	}

	existing, err := CountLines(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	if err := terminateLastLine(f); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to repair %s", path)
	}

	log.Infow("Fast forward", logger.FieldSkipped, existing)

	return &Sink{path: path, file: f, existing: existing, skip: existing, logger: log}, nil
}

// terminateLastLine appends a newline when an interrupted run left a partial last line,
// so the next record starts on its own line.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// Write appends v as one JSON line, unless it is still within the fast-forward window.
// It reports whether v was written.
func (s *Sink) Write(v interface{}) (bool, error) {
	if s.skip > 0 {
		s.logger.Debugw("Fast forward, skipping item", "index", s.existing-s.skip)
		s.skip--
		return false, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode output line")
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return false, errors.Wrapf(err, "failed to append to %s", s.path)
	}
	s.written++
	return true, nil
}

// Remaining reports how many writes will still be skipped.
func (s *Sink) Remaining() int { return s.skip }

// Advance consumes up to n pending skips without writing, returning how many were consumed.
func (s *Sink) Advance(n int) int {
	if n > s.skip {
		n = s.skip
	}
	if n < 0 {
		n = 0
	}
	s.skip -= n
	return n
}

// Existing returns the line count found when the sink was opened.
func (s *Sink) Existing() int { return s.existing }

// Written returns how many lines this sink appended.
func (s *Sink) Written() int { return s.written }

// Path returns the output file path.
func (s *Sink) Path() string { return s.path }

// Close flushes the file to disk and closes it.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	s.file = nil
	if syncErr != nil {
		return errors.Wrapf(syncErr, "failed to sync %s", s.path)
	}
	return closeErr
}
