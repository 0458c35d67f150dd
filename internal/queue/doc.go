// Package queue provides an unbounded multi-producer/multi-consumer FIFO.
//
// Any number of goroutines may Push concurrently; any number may block in
// Pop. Items are delivered in global push order, but which consumer receives
// the next item is decided by whichever goroutine acquires the internal lock
// first.
//
// # Basic Usage
//
//	q := queue.New[string]()
//	_ = q.Push("a")
//
//	v, ok := q.Pop() // blocks until an item is available
//
// # Closing
//
// CloseWith appends a final batch of items and closes the queue in a single
// step, so no Push can slip in behind the tail. After close, Push returns
// ErrClosed while Pop keeps draining what is left and then reports false.
package queue
