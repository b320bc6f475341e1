package event

import (
	"fmt"
	"sync/atomic"
)

// ErrorHandler is told about a listener that panicked while handling e.
type ErrorHandler func(e Event, l Listener, err error)

// Chain multicasts events to a list of listeners.
//
// The listener list is copy-on-write: Add and Remove publish a new slice and
// every dispatch works on the snapshot taken when it started, so listeners
// may be added or removed concurrently with delivery. A listener that panics
// is reported to the error handler and the remaining listeners still run.
type Chain struct {
	listeners atomic.Pointer[[]Listener]
	onError   ErrorHandler
}

// NewChain creates a chain holding the given non-nil listeners.
func NewChain(listeners ...Listener) *Chain {
	c := &Chain{}
	for _, l := range listeners {
		c.Add(l)
	}
	return c
}

// OnError installs the handler for listener failures. By default failures
// are discarded.
func (c *Chain) OnError(h ErrorHandler) *Chain {
	c.onError = h
	return c
}

// Add appends l. Nil listeners are ignored.
func (c *Chain) Add(l Listener) {
	if l == nil {
		return
	}
	for {
		old := c.listeners.Load()
		var next []Listener
		if old != nil {
			next = make([]Listener, len(*old), len(*old)+1)
			copy(next, *old)
		}
		next = append(next, l)
		if c.listeners.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Remove drops the first occurrence of l. Listeners are compared with ==,
// so they should be pointers or other comparable values.
func (c *Chain) Remove(l Listener) {
	for {
		old := c.listeners.Load()
		if old == nil {
			return
		}
		idx := -1
		for i, x := range *old {
			if x == l {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		next := make([]Listener, 0, len(*old)-1)
		next = append(next, (*old)[:idx]...)
		next = append(next, (*old)[idx+1:]...)
		if c.listeners.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Len returns the number of listeners.
func (c *Chain) Len() int {
	if p := c.listeners.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// Dispatch delivers e to every listener in registration order, routed by
// the event's type.
func (c *Chain) Dispatch(e Event) {
	c.each(e, func(l Listener) { Dispatch(l, e) })
}

func (c *Chain) each(e Event, call func(Listener)) {
	p := c.listeners.Load()
	if p == nil {
		return
	}
	for _, l := range *p {
		c.deliver(l, e, call)
	}
}

func (c *Chain) deliver(l Listener, e Event, call func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			c.handleError(e, l, r)
		}
	}()
	call(l)
}

func (c *Chain) handleError(e Event, l Listener, r any) {
	if c.onError == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	err = fmt.Errorf("listener %T failed on %s: %w", l, e.Type(), err)
	defer func() { _ = recover() }()
	c.onError(e, l, err)
}

func (c *Chain) ArtifactDescriptorInvalid(e Event) {
	c.each(e, func(l Listener) { l.ArtifactDescriptorInvalid(e) })
}

func (c *Chain) ArtifactDescriptorMissing(e Event) {
	c.each(e, func(l Listener) { l.ArtifactDescriptorMissing(e) })
}

func (c *Chain) MetadataInvalid(e Event) {
	c.each(e, func(l Listener) { l.MetadataInvalid(e) })
}

func (c *Chain) ArtifactResolving(e Event) {
	c.each(e, func(l Listener) { l.ArtifactResolving(e) })
}

func (c *Chain) ArtifactResolved(e Event) {
	c.each(e, func(l Listener) { l.ArtifactResolved(e) })
}

func (c *Chain) MetadataResolving(e Event) {
	c.each(e, func(l Listener) { l.MetadataResolving(e) })
}

func (c *Chain) MetadataResolved(e Event) {
	c.each(e, func(l Listener) { l.MetadataResolved(e) })
}

func (c *Chain) ArtifactInstalling(e Event) {
	c.each(e, func(l Listener) { l.ArtifactInstalling(e) })
}

func (c *Chain) ArtifactInstalled(e Event) {
	c.each(e, func(l Listener) { l.ArtifactInstalled(e) })
}

func (c *Chain) MetadataInstalling(e Event) {
	c.each(e, func(l Listener) { l.MetadataInstalling(e) })
}

func (c *Chain) MetadataInstalled(e Event) {
	c.each(e, func(l Listener) { l.MetadataInstalled(e) })
}

func (c *Chain) ArtifactDeploying(e Event) {
	c.each(e, func(l Listener) { l.ArtifactDeploying(e) })
}

func (c *Chain) ArtifactDeployed(e Event) {
	c.each(e, func(l Listener) { l.ArtifactDeployed(e) })
}

func (c *Chain) MetadataDeploying(e Event) {
	c.each(e, func(l Listener) { l.MetadataDeploying(e) })
}

func (c *Chain) MetadataDeployed(e Event) {
	c.each(e, func(l Listener) { l.MetadataDeployed(e) })
}
