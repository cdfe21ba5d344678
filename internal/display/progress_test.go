package display

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"find-me-internet/internal/model"
	"find-me-internet/internal/scanner"
	"find-me-internet/internal/sink"
)

func TestPrintSummaryListsAllPaths(t *testing.T) {
	var buf bytes.Buffer
	paths := sink.RunPaths{Results: "r.txt", Alive: "w.txt", Dead: "f.txt"}
	PrintSummary(&buf, scanner.Summary{State: scanner.StateStopped, Total: 10, Done: 4, Alive: 1, Dead: 3}, paths)

	out := buf.String()
	for _, want := range []string{"stopped", "4/10", "r.txt", "w.txt", "f.txt"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestDescribeTCP(t *testing.T) {
	d := 2500 * time.Microsecond
	if got := describeTCP(model.TCPStats{Avg: &d, Fails: 1}); got != "2.5ms fails=1" {
		t.Errorf("describeTCP = %q", got)
	}
	if got := describeTCP(model.TCPStats{Fails: 2}); got != "FAIL fails=2" {
		t.Errorf("describeTCP = %q", got)
	}
}

func TestNonTerminalDisplay(t *testing.T) {
	// Either mode must accept callbacks without panicking.
	p := NewProgressDisplay(3, false)
	p.OnResult(scanner.Progress{Result: model.ScanResult{}, Done: 1, Total: 3})
	p.OnChunk(scanner.ChunkReport{Chunk: 1, Chunks: 1})
	p.Finish(scanner.StateCompleted)
}

func TestBarDisplayChunkLineAndStoppedRun(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var bar bytes.Buffer
	p := newBarDisplay(&bar, 4, true)
	p.OnResult(scanner.Progress{Alive: true, Done: 1, Total: 4, Alives: 1})
	p.OnResult(scanner.Progress{Done: 2, Total: 4, Alives: 1, Deads: 1})
	p.OnChunk(scanner.ChunkReport{Chunk: 1, Chunks: 2, Size: 2, Alive: 1, Dead: 1, Done: 2, Total: 4, Alives: 1, Deads: 1})

	out := logs.String()
	for _, want := range []string{"chunk_persisted", "chunk=1/2", "alive=1", "dead=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("chunk log missing %q:\n%s", want, out)
		}
	}

	p.Finish(scanner.StateStopped)
	if pct := p.bar.State().CurrentPercent; pct >= 1 {
		t.Errorf("stopped run filled the bar to %.0f%%", pct*100)
	}

	done := newBarDisplay(&bytes.Buffer{}, 2, true)
	done.OnResult(scanner.Progress{Done: 1, Total: 2})
	done.Finish(scanner.StateCompleted)
	if pct := done.bar.State().CurrentPercent; pct != 1 {
		t.Errorf("completed run bar at %.0f%%, want 100%%", pct*100)
	}
}
