// Package connector executes batches of transfers against one repository.
//
// [Parallel] is the orchestrator. It owns a fixed pool of worker goroutines
// shared by every batch submitted to it, runs each download or upload as an
// independent task and blocks the caller until the whole batch is done.
// Per-item outcomes are written into the items' Err fields; one failed item
// never affects its siblings.
//
// Bytes are moved by a [Backend], which only knows how to open, store and
// probe named resources. Backends for the filesystem, HTTP and MongoDB
// GridFS live in sub-packages; [Factory] adapts a backend constructor into a
// [repository.Factory] for the repository manager.
//
// # Lifecycle
//
// Each transfer reports Initiated, Started, zero or more Progressed and then
// exactly one of Succeeded or Failed to the listener. A listener vetoing a
// transfer aborts only that transfer, which then fails with a cancelled
// error. Downloads are staged in a temporary file beside the target and
// renamed into place only after the transfer and its checksum verification
// succeed, so an interrupted download never leaves a partial target.
package connector
