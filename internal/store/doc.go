// Package store defines the three-operation contract against the
// durable key-value table and its MySQL-backed implementation.
//
// The Store interface (SelectValue, Upsert, Delete) is the seam the
// server is written against; tests substitute in-memory fakes the same
// way production substitutes Pooled, which borrows one pool session per
// call and runs the Table adapter's parameterized statement on it.
//
// Row absence is the ErrNotFound outcome, never a store error. Every
// failed statement crosses this boundary as a single wrapped error with
// the driver's message attached. Pooled returns a failed session
// acquire (a context error or dbpool.ErrClosed) unwrapped.
package store
