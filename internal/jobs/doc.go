// Package jobs runs long operations on a background goroutine under a
// single-flight policy: while one run is in flight, new submissions are
// dropped rather than queued. Completion is reported once per accepted
// submission through a caller-supplied callback.
package jobs
