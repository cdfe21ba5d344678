// Package scanner runs a batch of endpoints through a Prober in
// fixed-size chunks, persisting each chunk before starting the next.
//
// At most one chunk of completed work can be lost to an abrupt exit.
// Cancellation is cooperative: it is checked before each chunk and
// before each submission, and stops the run without waiting for
// in-flight probes.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"find-me-internet/internal/model"

	"github.com/panjf2000/ants/v2"
)

const (
	DefaultWorkers   = 4
	DefaultChunkSize = 50
)

var ErrEngineRequired = errors.New("verifier enabled but proxy engine unavailable")

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Persister receives each chunk once all of its work has finished.
type Persister interface {
	AppendChunk(results []model.ScanResult, verified bool) error
}

type Options struct {
	Workers   int
	ChunkSize int
	// Verified selects the aliveness policy, see model.ScanResult.Alive.
	Verified bool
}

// Progress is reported after every completed probe.
type Progress struct {
	Result model.ScanResult
	Alive  bool
	Done   int
	Total  int
	Alives int
	Deads  int
}

// ChunkReport is reported after every persisted chunk.
type ChunkReport struct {
	Chunk  int // 1-based
	Chunks int
	Size   int
	Alive  int
	Dead   int
	Done   int
	Total  int
	Alives int
	Deads  int
}

type Summary struct {
	State   State
	Total   int
	Done    int
	Alive   int
	Dead    int
	Elapsed time.Duration
}

type Scanner struct {
	prober Prober
	out    Persister
	opts   Options
	state  atomic.Int32

	OnResult func(Progress)
	OnChunk  func(ChunkReport)

	total, done, alive, dead int
}

func New(prober Prober, out Persister, opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Scanner{prober: prober, out: out, opts: opts}
}

func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Run scans eps once. A Scanner cannot be reused.
func (s *Scanner) Run(ctx context.Context, eps []model.Endpoint) (Summary, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Summary{}, fmt.Errorf("scanner already %s", s.State())
	}
	start := time.Now()
	s.total = len(eps)

	pool, err := ants.NewPool(s.opts.Workers, ants.WithPanicHandler(func(p any) {
		slog.Error("probe_panic", "panic", p)
	}))
	if err != nil {
		s.state.Store(int32(StateStopped))
		return Summary{}, fmt.Errorf("create worker pool: %w", err)
	}
	// Release does not wait for stragglers.
	defer pool.Release()

	chunks := split(eps, s.opts.ChunkSize)
	final := StateCompleted
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			final = StateStopped
			break
		}

		results, interrupted := s.runChunk(ctx, pool, chunk)
		s.persist(i+1, len(chunks), results)

		if interrupted {
			final = StateStopped
			break
		}
	}

	s.state.Store(int32(final))
	return Summary{
		State:   final,
		Total:   s.total,
		Done:    s.done,
		Alive:   s.alive,
		Dead:    s.dead,
		Elapsed: time.Since(start),
	}, nil
}

// runChunk submits every endpoint of chunk and collects results in
// completion order. It reports true when cancellation cut it short.
func (s *Scanner) runChunk(ctx context.Context, pool *ants.Pool, chunk []model.Endpoint) ([]model.ScanResult, bool) {
	// Buffered so abandoned probes never block.
	out := make(chan model.ScanResult, len(chunk))
	count := make(chan int, 1)

	go func() {
		submitted := 0
		for _, ep := range chunk {
			if ctx.Err() != nil {
				break
			}
			err := pool.Submit(func() {
				// Queued behind a full pool and then cancelled: never start.
				if ctx.Err() != nil {
					return
				}
				out <- s.probe(ctx, ep)
			})
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("submit_failed", "index", ep.Index, "error", err)
				}
				break
			}
			submitted++
		}
		count <- submitted
	}()

	submitted := -1
	results := make([]model.ScanResult, 0, len(chunk))
	for submitted < 0 || len(results) < submitted {
		select {
		case n := <-count:
			submitted = n
		case r := <-out:
			// A probe finishing after cancellation may have been cut
			// short by it, so its measurements are not trusted.
			if ctx.Err() != nil {
				return results, true
			}
			results = append(results, r)
			s.record(r)
		case <-ctx.Done():
			return results, true
		}
	}
	return results, ctx.Err() != nil
}

func (s *Scanner) probe(ctx context.Context, ep model.Endpoint) (r model.ScanResult) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("probe_panic", "index", ep.Index, "panic", p)
			r = model.ScanResult{
				Endpoint: ep,
				UDP:      model.UDPStats{Status: model.UDPOff},
				TLS:      model.TLSOff,
				Verify:   model.Verification{Reason: model.ReasonFailed},
			}
		}
	}()
	return s.prober.Probe(ctx, ep)
}

func (s *Scanner) record(r model.ScanResult) {
	ok := r.Alive(s.opts.Verified)
	s.done++
	if ok {
		s.alive++
	} else {
		s.dead++
	}
	if s.OnResult != nil {
		s.OnResult(Progress{Result: r, Alive: ok, Done: s.done, Total: s.total, Alives: s.alive, Deads: s.dead})
	}
}

func (s *Scanner) persist(n, of int, results []model.ScanResult) {
	if err := s.out.AppendChunk(results, s.opts.Verified); err != nil {
		slog.Error("chunk_persist_failed", "chunk", n, "error", err)
	} else {
		slog.Debug("chunk_persisted", "chunk", n, "rows", len(results))
	}

	rep := ChunkReport{Chunk: n, Chunks: of, Size: len(results), Done: s.done, Total: s.total, Alives: s.alive, Deads: s.dead}
	for _, r := range results {
		if r.Alive(s.opts.Verified) {
			rep.Alive++
		} else {
			rep.Dead++
		}
	}
	if s.OnChunk != nil {
		s.OnChunk(rep)
	}
}

// split cuts eps into contiguous chunks of at most size.
func split(eps []model.Endpoint, size int) [][]model.Endpoint {
	var chunks [][]model.Endpoint
	for len(eps) > 0 {
		n := min(size, len(eps))
		chunks = append(chunks, eps[:n:n])
		eps = eps[n:]
	}
	return chunks
}
