// Package audit provides the write-only side channels of an extraction run.
//
// A Trail bundles three independent sinks:
//   - debug: one line per significant event (record start, skip, collection
//     summary, run totals), in traversal order
//   - error: one line per per-record failure, plus the stack trace of a fatal
//     run error
//   - raw: optional JSON-lines dump of every value the pipeline attempted to
//     process, before normalization
//
// Sinks are pure side effects. A Trail with any sink missing (or Nop) must not
// change what an extraction returns.
//
// A Trail owns its files. Close releases all of them and is safe to call more
// than once; With scopes a Trail to a function so release happens on every
// exit path, panics included.
package audit
