// Package pipeline drives targets through fetch, unpack, organize, and place.
//
// Each target walks a validated state machine (pending, fetched, unpacked,
// organized, done) and may end failed at any stage or skipped. Targets run on
// a bounded worker pool; a failure affects only its own target. Cancelling the
// run context stops dispatch: targets already running finish on a detached
// context and everything not yet started is marked skipped.
package pipeline
