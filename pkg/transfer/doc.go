// Package transfer defines the unit of work moved between a client and a
// repository: downloads and uploads of artifacts and metadata, the
// [Resource] each transfer operates on, the lifecycle [Event] stream and the
// [Listener] that observes it.
//
// A [Connector] executes batches of transfers. Every item carries its own
// error; a batch never fails as a whole because one of its items failed.
//
// Listeners may veto a transfer from Initiated, Started, Progressed or
// Corrupted by returning an error that wraps [ErrCancelled]. The transfer is
// then aborted and reported through a single Failed event.
package transfer
