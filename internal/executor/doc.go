// Package executor provides a fixed worker pool with one-shot result
// futures, used to move blocking store I/O off the request path.
//
// # Model
//
//	Submit(task) ──► FIFO queue ──► worker goroutines (W)
//	     │                               │
//	     └───────── *Future ◄── publish ─┘
//
// Each submitted task gets a Future that resolves exactly once with
// the task's value or error. Futures are single-producer,
// single-consumer.
//
// # No cancellation
//
// A submitted task always runs to completion. Callers enforce request
// deadlines by abandoning the future (Wait with a context); the task's
// side effects still occur. Long-running store calls must therefore be
// bounded by store-side timeouts on the session itself.
package executor
