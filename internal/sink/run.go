package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"find-me-internet/internal/model"
)

const (
	WhitelistDir = "whitelist"
	FailedDir    = "failed_configs"
)

// Header is the first line of every full-results file.
var Header = strings.Join([]string{
	"status", "index", "scheme", "network", "host", "port", "tag",
	"tcp_avg_ms", "tcp_fails", "udp_avg_ms", "udp", "tls",
	"verify", "verify_ms", "server_ms", "http", "country",
}, "\t")

// RunPaths names the three files of one run.
type RunPaths struct {
	Results string
	Alive   string
	Dead    string
}

func NewRunPaths(root string, ts time.Time) RunPaths {
	stamp := ts.Format("20060102_150405")
	return RunPaths{
		Results: filepath.Join(root, "results_"+stamp+".txt"),
		Alive:   filepath.Join(root, WhitelistDir, "whitelist_"+stamp+".txt"),
		Dead:    filepath.Join(root, FailedDir, "failed_"+stamp+".txt"),
	}
}

// RunWriter persists a run chunk by chunk. Rows are only ever appended.
type RunWriter struct {
	Paths   RunPaths
	results *TextWriter
	alive   *TextWriter
	dead    *TextWriter
	jsonl   *JSONLWriter
}

// Open creates the three files empty (results with its header) and
// keeps them open for appending. jsonlPath is optional.
func Open(paths RunPaths, jsonlPath string) (*RunWriter, error) {
	for _, p := range []string{paths.Results, paths.Alive, paths.Dead} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		if err := os.WriteFile(p, nil, 0644); err != nil {
			return nil, fmt.Errorf("init %s: %w", p, err)
		}
	}

	w := &RunWriter{Paths: paths}
	var err error
	if w.results, err = NewText(paths.Results); err != nil {
		return nil, err
	}
	if w.alive, err = NewText(paths.Alive); err != nil {
		w.Close()
		return nil, err
	}
	if w.dead, err = NewText(paths.Dead); err != nil {
		w.Close()
		return nil, err
	}
	if jsonlPath != "" {
		if w.jsonl, err = NewJSONL(jsonlPath); err != nil {
			w.Close()
			return nil, err
		}
	}

	if err := w.results.WriteLines([]string{Header}); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// AppendChunk writes one row per result and sorts raw descriptors into
// the alive and dead lists.
func (w *RunWriter) AppendChunk(results []model.ScanResult, verified bool) error {
	rows := make([]string, 0, len(results))
	var alive, dead []string
	for _, r := range results {
		ok := r.Alive(verified)
		rows = append(rows, FormatRow(r, ok))
		if ok {
			alive = append(alive, r.Endpoint.Raw)
		} else {
			dead = append(dead, r.Endpoint.Raw)
		}
	}

	if err := w.results.WriteLines(rows); err != nil {
		return err
	}
	if err := w.alive.WriteLines(alive); err != nil {
		return err
	}
	if err := w.dead.WriteLines(dead); err != nil {
		return err
	}
	if w.jsonl != nil {
		for _, r := range results {
			if err := w.jsonl.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *RunWriter) Close() error {
	var errs []error
	for _, tw := range []*TextWriter{w.results, w.alive, w.dead} {
		if tw != nil {
			errs = append(errs, tw.Close())
		}
	}
	if w.jsonl != nil {
		errs = append(errs, w.jsonl.Close())
	}
	return errors.Join(errs...)
}

// FormatRow renders one tab-separated result line matching Header.
func FormatRow(r model.ScanResult, alive bool) string {
	status := "DEAD"
	if alive {
		status = "ALIVE"
	}
	ep := r.Endpoint
	fields := []string{
		status,
		strconv.Itoa(ep.Index),
		string(ep.Scheme),
		clean(ep.Network),
		clean(ep.Host),
		strconv.Itoa(ep.Port),
		clean(ep.Tag),
		millis(r.TCP.Avg),
		strconv.Itoa(r.TCP.Fails),
		millis(r.UDP.RTT),
		string(r.UDP.Status),
		string(r.TLS),
		r.Verify.Reason,
		millis(r.Verify.Elapsed),
		millis(r.Verify.ServerTime),
		intOrDash(r.Verify.HTTPStatus),
		orDash(r.Country),
	}
	return strings.Join(fields, "\t")
}

var cleaner = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func clean(s string) string {
	return orDash(cleaner.Replace(s))
}

func millis(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return strconv.FormatFloat(float64(*d)/float64(time.Millisecond), 'f', 1, 64)
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
