// Package main provides the entry point for the pagefetch CLI.
//
// pagefetch downloads the front page of every site in a list, routing
// each request through a proxy leased from a pool, and saves the HTML
// together with a plain-text rendering.
//
// Usage:
//
//	pagefetch fetch -f sites.csv -p proxies.txt -d downloaded
//	pagefetch history
//
// See --help for all available options.
package main

// main is the entry point for pagefetch.
func main() {
	Execute()
}
