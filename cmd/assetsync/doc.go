// Package main hosts the assetsync CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration once, builds a runner,
// and renders its reports as tables or JSON. Sync, diff, targets, bust, and run
// all go through internal/runner; status and config commands read state
// without taking the run lock.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
