// Package resource bounds the shared resources used by ingestion:
// concurrent embedding calls, embedding request rate, memory held by
// in-flight batches and snapshot write throughput.
//
// A nil *Controller imposes no limits.
package resource
