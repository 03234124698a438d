package util

import (
	"sync"
)

// Event is a one-shot latch carrying the error a goroutine finished with.
type Event struct {
	notified bool
	err      error
	c        *sync.Cond
}

func NewEvent() *Event {
	return &Event{
		c: sync.NewCond(&sync.Mutex{}),
	}
}

// Notify fires the event. Only the first call records err.
func (e *Event) Notify(err error) {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	if !e.notified {
		e.notified = true
		e.err = err
		e.c.Broadcast()
	}
}

// Wait blocks until Notify and returns the recorded error.
func (e *Event) Wait() error {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	for !e.notified {
		e.c.Wait()
	}
	return e.err
}

func (e *Event) HasBeenNotified() bool {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	return e.notified
}

// Err returns the recorded error without blocking; nil until notified.
func (e *Event) Err() error {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	return e.err
}
