// Package fetch downloads front pages through leased proxies.
//
// A Client performs a single GET through a given proxy with a per-read
// deadline. Classify maps the result of that request onto a model.Reason.
// A Worker drives one URL from lease to release, and an Orchestrator runs
// one Worker per URL under a connection ceiling.
//
// Every URL handed to Orchestrator.Run yields exactly one model.Outcome,
// unless the run is cancelled before that URL's Worker leased a proxy.
package fetch
