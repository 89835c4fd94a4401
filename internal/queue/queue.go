// Package queue provides monitor.TaskQueue implementations: a
// process-local channel queue for single-binary deployments and tests,
// and a Google Cloud Pub/Sub queue for running the report worker as a
// separate process.
package queue

import "github.com/rotisserie/eris"

// ErrClosed is returned by Enqueue and Dequeue after Close.
var ErrClosed = eris.New("queue closed")
