package media

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const defaultProbeTTL = 10 * time.Minute

type cachedInfo struct {
	info     *Info
	probedAt time.Time
}

// CachedProber wraps a Prober and remembers results per URI so composition
// rebuilds do not re-probe unchanged sources. Failures are not cached.
type CachedProber struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedInfo
}

func NewCachedProber(prober Prober, ttl time.Duration, logger *slog.Logger) *CachedProber {
	if ttl <= 0 {
		ttl = defaultProbeTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CachedProber{
		prober: prober,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cachedInfo),
	}
}

// Probe returns cached info if fresh, otherwise probes again.
func (p *CachedProber) Probe(ctx context.Context, uri string) (*Info, error) {
	if info, ok := p.Peek(uri); ok {
		return info, nil
	}

	info, err := p.prober.Probe(ctx, uri)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[uri] = cachedInfo{info: info, probedAt: p.now()}
	p.mu.Unlock()
	return copyInfo(info), nil
}

// Peek returns a cached result without probing.
func (p *CachedProber) Peek(uri string) (*Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cache[uri]
	if !ok || p.now().Sub(c.probedAt) >= p.ttl {
		return nil, false
	}
	return copyInfo(c.info), true
}

// Invalidate drops the cached result for uri.
func (p *CachedProber) Invalidate(uri string) {
	p.mu.Lock()
	delete(p.cache, uri)
	p.mu.Unlock()
}

func copyInfo(i *Info) *Info {
	cp := *i
	return &cp
}
