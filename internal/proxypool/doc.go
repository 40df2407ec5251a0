// Package proxypool provides a fixed, circulating pool of proxy addresses.
//
// The pool never creates or destroys addresses after construction. A worker
// leases one address for the span of a single fetch and returns it when the
// fetch is done, whatever the result. Do wraps lease and release so that the
// release happens on every exit path, including panics.
//
//	pool, err := proxypool.New([]string{"10.0.0.1:3128", "10.0.0.2:3128"})
//	if err != nil {
//	    return err
//	}
//	err = pool.Do(ctx, func(addr string) error {
//	    return fetchThrough(addr)
//	})
package proxypool
