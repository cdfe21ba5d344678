package display

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"find-me-internet/internal/model"
	"find-me-internet/internal/scanner"
	"find-me-internet/internal/sink"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ProgressDisplay shows live counts: a progress bar on a terminal, log
// lines otherwise.
type ProgressDisplay struct {
	bar      *progressbar.ProgressBar
	out      io.Writer
	verified bool
}

// NewProgressDisplay draws on stderr so the bar never mixes with the
// log stream on stdout.
func NewProgressDisplay(total int, verified bool) *ProgressDisplay {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return &ProgressDisplay{verified: verified}
	}
	return newBarDisplay(os.Stderr, total, verified)
}

func newBarDisplay(w io.Writer, total int, verified bool) *ProgressDisplay {
	p := &ProgressDisplay{out: w, verified: verified}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return p
}

func (p *ProgressDisplay) OnResult(pr scanner.Progress) {
	ep := pr.Result.Endpoint
	slog.Debug("probe_done",
		"index", ep.Index,
		"scheme", ep.Scheme,
		"target", fmt.Sprintf("%s:%d", ep.Host, ep.Port),
		"network", ep.Network,
		"alive", pr.Alive,
		"tcp", describeTCP(pr.Result.TCP),
		"udp", pr.Result.UDP.Status,
		"verify", pr.Result.Verify.Reason,
	)

	if p.bar == nil {
		return
	}
	p.bar.Describe(fmt.Sprintf("[green]alive %d[reset] [red]dead %d[reset]", pr.Alives, pr.Deads))
	_ = p.bar.Add(1)
}

// OnChunk logs the chunk counts. On a terminal the bar is cleared first
// so the line lands above it; the next Add redraws the bar.
func (p *ProgressDisplay) OnChunk(r scanner.ChunkReport) {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	slog.Info("chunk_persisted",
		"chunk", fmt.Sprintf("%d/%d", r.Chunk, r.Chunks),
		"alive", r.Alive,
		"dead", r.Dead,
		"done", fmt.Sprintf("%d/%d", r.Done, r.Total),
		"total_alive", r.Alives,
		"total_dead", r.Deads,
	)
}

// Finish fills the bar only for a completed run; a stopped run keeps
// the bar where it stood.
func (p *ProgressDisplay) Finish(state scanner.State) {
	if p.bar == nil {
		return
	}
	if state == scanner.StateCompleted {
		_ = p.bar.Finish()
	}
	fmt.Fprintln(p.out)
}

func describeTCP(s model.TCPStats) string {
	if s.Avg == nil {
		return fmt.Sprintf("FAIL fails=%d", s.Fails)
	}
	return fmt.Sprintf("%.1fms fails=%d", float64(*s.Avg)/float64(time.Millisecond), s.Fails)
}

// PrintSummary writes the final counts and the location of every output
// file, whether or not the run finished.
func PrintSummary(w io.Writer, sum scanner.Summary, paths sink.RunPaths) {
	fmt.Fprintf(w, "\n--- Scan %s in %s ---\n", sum.State, sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Checked:   %d/%d\n", sum.Done, sum.Total)
	fmt.Fprintf(w, "Alive:     %d\n", sum.Alive)
	fmt.Fprintf(w, "Dead:      %d\n", sum.Dead)
	fmt.Fprintf(w, "Whitelist: %s\n", paths.Alive)
	fmt.Fprintf(w, "Failed:    %s\n", paths.Dead)
	fmt.Fprintf(w, "Results:   %s\n", paths.Results)
}
