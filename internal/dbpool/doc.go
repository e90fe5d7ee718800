// Package dbpool manages a fixed-size pool of pre-opened MySQL
// sessions, lent one at a time to store operations.
//
// Each session is a dedicated *sql.Conn checked out of a *sql.DB at
// startup, so a borrowed session maps to exactly one server connection
// for the duration of one store call. Acquire blocks (context-aware)
// when every session is borrowed; Release returns the session and
// wakes one waiter.
//
// Failure handling is deliberately minimal: sessions are never probed
// or replaced after a store error. A *sql.Conn is not redialed: once
// the driver reports its connection bad, the session closes itself and
// every later call on it fails with sql.ErrConnDone. Store-side
// timeouts on the DSN bound how long any single call can hold a
// session.
package dbpool
