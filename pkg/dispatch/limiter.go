package dispatch

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token-bucket limiter per target URL. Limiter
// state is process-wide so concurrent campaigns against the same target
// share a budget.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst < 1 {
		burst = 1
	}
	return &limiterPool{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (p *limiterPool) get(targetURL string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[targetURL]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rps), p.burst)
		p.limiters[targetURL] = l
	}
	return l
}
