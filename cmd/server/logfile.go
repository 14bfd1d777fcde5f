package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

// logFileWriter appends to a log file and, once it grows past maxBytes, rewrites it
// to keep only the newest keepBytes starting at a line boundary.
type logFileWriter struct {
	mu        sync.Mutex
	file      *os.File
	maxBytes  int64
	keepBytes int64
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	w := &logFileWriter{file: file, maxBytes: maxLogSizeBytes, keepBytes: keepLogSizeBytes}
	if err := w.trim(); err != nil {
		file.Close()
		return nil, nil, err
	}
	return w, file, nil
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.trim()
}

func (w *logFileWriter) trim() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= w.maxBytes {
		return nil
	}

	tail := make([]byte, w.keepBytes)
	n, err := w.file.ReadAt(tail, size-w.keepBytes)
	if err != nil && err != io.EOF {
		return err
	}
	tail = tail[:n]
	if i := bytes.IndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	// O_APPEND writes go to the new end after truncation.
	_, err = w.file.Write(tail)
	return err
}
