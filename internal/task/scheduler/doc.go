// Package scheduler drives the batch runner periodically.
//
// The driver is responsible only for:
//   - deciding when the next batch is due (jitter on top of an optional base schedule)
//   - sleeping until then without overlapping batches
//   - handing the batch to the engine
package scheduler
