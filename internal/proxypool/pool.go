package proxypool

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyPool is returned by New when no addresses are given.
// An empty pool would block every lease forever.
var ErrEmptyPool = errors.New("proxy pool needs at least one address")

// Pool is a bounded pool of proxy addresses supporting lease and release.
//
// The pool is a buffered channel holding every available address. Its
// capacity equals the number of addresses, so a release can never block:
// at most Size() addresses are ever in circulation.
//
// The same address may appear more than once; each instance circulates
// independently. Which waiter receives a released address is unspecified.
type Pool struct {
	available chan string
	size      int
}

// New creates a pool holding the given addresses.
func New(addrs []string) (*Pool, error) {
	if len(addrs) == 0 {
		return nil, ErrEmptyPool
	}

	p := &Pool{
		available: make(chan string, len(addrs)),
		size:      len(addrs),
	}
	for _, addr := range addrs {
		p.available <- addr
	}
	return p, nil
}

// Lease is one borrowed proxy address.
// Release returns it to the pool; only the first call has an effect.
type Lease struct {
	pool *Pool
	addr string
	once sync.Once
}

// Addr returns the leased proxy address.
func (l *Lease) Addr() string {
	return l.addr
}

// Release returns the address to the pool. It is safe to call more than
// once and from multiple goroutines; the address goes back exactly once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.available <- l.addr
	})
}

// Lease takes an address out of the pool, waiting while none is available.
// It returns ctx.Err() if the context ends first.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	// Prefer reporting cancellation over handing out an address when both
	// are ready.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case addr := <-p.available:
		if err := ctx.Err(); err != nil {
			p.available <- addr
			return nil, err
		}
		return &Lease{pool: p, addr: addr}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do leases an address, runs fn with it and releases the address when fn
// returns or panics. The error from fn is returned unchanged; a lease
// failure (context done) is returned without calling fn.
func (p *Pool) Do(ctx context.Context, fn func(addr string) error) error {
	lease, err := p.Lease(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	return fn(lease.Addr())
}

// Size returns the fixed number of addresses in circulation.
func (p *Pool) Size() int {
	return p.size
}

// Available returns the number of addresses not currently leased.
func (p *Pool) Available() int {
	return len(p.available)
}

// InUse returns the number of addresses currently leased.
func (p *Pool) InUse() int {
	return p.size - len(p.available)
}
