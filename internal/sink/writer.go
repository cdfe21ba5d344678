package sink

import (
	"encoding/json"
	"os"
	"sync"

	"find-me-internet/internal/model"
)

// appendFlags never truncate: a run's files only grow.
const appendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

type JSONLWriter struct {
	file *os.File
	mu   sync.Mutex
}

func NewJSONL(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, appendFlags, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{file: f}, nil
}

func (w *JSONLWriter) Write(r model.ScanResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	_, err = w.file.Write(append(data, '\n'))
	return err
}

func (w *JSONLWriter) Close() error {
	return w.file.Close()
}

type TextWriter struct {
	file *os.File
	mu   sync.Mutex
}

func NewText(path string) (*TextWriter, error) {
	f, err := os.OpenFile(path, appendFlags, 0644)
	if err != nil {
		return nil, err
	}
	return &TextWriter{file: f}, nil
}

// WriteLines appends each line followed by a newline in one write.
func (w *TextWriter) WriteLines(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for _, ln := range lines {
		n += len(ln) + 1
	}
	buf := make([]byte, 0, n)
	for _, ln := range lines {
		buf = append(buf, ln...)
		buf = append(buf, '\n')
	}
	_, err := w.file.Write(buf)
	return err
}

func (w *TextWriter) Close() error {
	return w.file.Close()
}
