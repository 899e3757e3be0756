package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/clip"
	"github.com/dgnsrekt/cuecast/internal/observe"
)

// Prefetcher loads clips ahead of need and serves them to the resolver.
type Prefetcher struct {
	load    LoadFunc
	config  Config
	logger  *log.Logger
	metrics *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats
	closed  bool
}

type entry struct {
	status Status
	pcm    []byte
}

// NewPrefetcher creates a prefetcher using load for each token.
func NewPrefetcher(load LoadFunc, config Config, logger *log.Logger, metrics *observe.Metrics) *Prefetcher {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Prefetcher{
		load:    load,
		config:  config,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}
	p.group.SetLimit(config.Concurrency)
	return p
}

// Prefetch starts loading every token not already present in any state.
// It never blocks on the loads themselves.
func (p *Prefetcher) Prefetch(tokens []string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	var fresh []string
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, ok := p.entries[token]; ok {
			continue
		}
		p.entries[token] = &entry{status: StatusLoading}
		p.stats.Loads++
		fresh = append(fresh, token)
	}
	p.wg.Add(len(fresh))
	p.mu.Unlock()

	if len(fresh) == 0 {
		return
	}

	// group.Go blocks at the concurrency limit, so feed it off the caller.
	go func() {
		for _, token := range fresh {
			p.group.Go(func() error {
				defer p.wg.Done()
				p.fetch(token)
				return nil
			})
		}
	}()
}

func (p *Prefetcher) fetch(token string) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	pcm, err := p.load(ctx, token)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.LastLoad = time.Now()
	e, ok := p.entries[token]
	if !ok {
		return
	}
	if err != nil {
		delete(p.entries, token)
		p.stats.Failures++
		p.metrics.RecordPrefetch(ctx, false)
		p.logger.Debug("Prefetch failed", "token", token, "err", err)
		return
	}

	e.status = StatusReady
	e.pcm = pcm
	p.stats.Bytes += int64(len(pcm))
	p.metrics.RecordPrefetch(ctx, true)
	p.logger.Debug("Prefetched clip", "token", token, "bytes", len(pcm))
}

// Get returns the decoded audio for token if it is ready.
func (p *Prefetcher) Get(token string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[token]
	hit := ok && e.status == StatusReady
	if hit {
		p.stats.Hits++
	} else {
		p.stats.Misses++
	}
	p.metrics.RecordCacheLookup(p.ctx, hit)
	if !hit {
		return nil, false
	}
	return e.pcm, true
}

// Status reports the state of the entry for token.
func (p *Prefetcher) Status(token string) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[token]
	if !ok {
		return 0, false
	}
	return e.status, true
}

// Stats returns a snapshot of the cache metrics.
func (p *Prefetcher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	for _, e := range p.entries {
		if e.status == StatusReady {
			s.Ready++
		} else {
			s.Loading++
		}
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Wait blocks until every started load has finished.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Close abandons in-progress loads and waits for them to return.
func (p *Prefetcher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// ClipLoader returns a LoadFunc that fetches a token's clip, trying the
// verbatim reference first and the encoded alternate second, and decodes it
// to the given format.
func ClipLoader(loader clip.Loader, layout clip.Layout, decode audio.DecodeFunc, format audio.Format) LoadFunc {
	return func(ctx context.Context, token string) ([]byte, error) {
		var errs []error
		for _, ref := range layout.CharacterRefs(token) {
			data, err := loader.Load(ctx, ref)
			if err == nil {
				var pcm []byte
				if pcm, err = decode(data, format); err == nil {
					return pcm, nil
				}
			}
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
			if ctx.Err() != nil {
				break
			}
		}
		return nil, errors.Join(errs...)
	}
}
