// Package engine implements the write-synchronization core: the connectivity
// monitor, the visibility-aware poller, the durable write queue, the
// debounced batch saver, the grading draft saver, and the review-state
// synchronizer.
//
// Components are explicit instances constructed per editing session and torn
// down with it. There is no ambient event registration: the hosting layer
// feeds connectivity and visibility transitions through explicit trigger
// methods, which keeps the engine testable headlessly.
//
// Ordering guarantees:
//   - at most one batch-save send is in flight per session at any time
//   - queue flushes are serialized and process entries strictly in FIFO order
//
// A fresh save and a queue flush of an older queued save are individually
// serialized but not against each other. Saves are full-snapshot writes, so
// the overlap is benign; the queue additionally discards a queued save whose
// QueuedAt predates the last successful save.
package engine
