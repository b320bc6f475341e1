package transfer

import (
	"errors"
	"fmt"
)

// Listener observes transfer lifecycles. The first four callbacks may veto
// the transfer by returning an error wrapping [ErrCancelled]; any other
// error is treated the same way. Succeeded and Failed are final and cannot
// veto.
//
// Callbacks for different transfers run concurrently; implementations must
// be safe for concurrent use.
type Listener interface {
	TransferInitiated(Event) error
	TransferStarted(Event) error
	TransferProgressed(Event) error
	TransferCorrupted(Event) error
	TransferSucceeded(Event)
	TransferFailed(Event)
}

// BaseListener implements [Listener] with no-ops. Embed it to override only
// the callbacks of interest.
type BaseListener struct{}

func (BaseListener) TransferInitiated(Event) error  { return nil }
func (BaseListener) TransferStarted(Event) error    { return nil }
func (BaseListener) TransferProgressed(Event) error { return nil }
func (BaseListener) TransferCorrupted(Event) error  { return nil }
func (BaseListener) TransferSucceeded(Event)        {}
func (BaseListener) TransferFailed(Event)           {}

// Multi fans events out to several listeners. Every listener sees every
// event; vetoes are joined. Nil listeners are dropped. A listener that
// panics does not stop the others: a panic in a vetoing callback counts as
// that listener's veto, one in Succeeded or Failed is dropped.
func Multi(listeners ...Listener) Listener {
	var m multi
	for _, l := range listeners {
		if l != nil {
			m = append(m, l)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

type multi []Listener

func (m multi) each(f func(Listener) error) error {
	var errs []error
	for _, l := range m {
		if err := guard(l, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// guard calls f on l, turning a panic into an error.
func guard(l Listener, f func(Listener) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: transfer listener %T panicked: %v", ErrCancelled, l, r)
		}
	}()
	return f(l)
}

func (m multi) TransferInitiated(e Event) error {
	return m.each(func(l Listener) error { return l.TransferInitiated(e) })
}

func (m multi) TransferStarted(e Event) error {
	return m.each(func(l Listener) error { return l.TransferStarted(e) })
}

func (m multi) TransferProgressed(e Event) error {
	return m.each(func(l Listener) error { return l.TransferProgressed(e) })
}

func (m multi) TransferCorrupted(e Event) error {
	return m.each(func(l Listener) error { return l.TransferCorrupted(e) })
}

func (m multi) TransferSucceeded(e Event) {
	_ = m.each(func(l Listener) error { l.TransferSucceeded(e); return nil })
}

func (m multi) TransferFailed(e Event) {
	_ = m.each(func(l Listener) error { l.TransferFailed(e); return nil })
}
