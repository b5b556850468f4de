package core

import (
	"sync"
	"time"
)

type EventContext struct {
	// Absolute input path of the file the event is about.
	Path string
	// Path relative to the input root.
	RelPath string
	// Output path, set once the file has been mapped.
	OutputPath string

	TrianglesIn  int
	TrianglesOut int
	Elapsed      time.Duration

	// Err is set for EVENT_CODE_FILE_FAILED.
	Err error
}

// System event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// A file was simplified and written.
	/* Context usage:
	 * Path, RelPath, OutputPath, TrianglesIn, TrianglesOut, Elapsed
	 */
	EVENT_CODE_FILE_SIMPLIFIED SystemEventCode = 0x01

	// A file could not be simplified.
	/* Context usage:
	 * Path, Err
	 */
	EVENT_CODE_FILE_FAILED SystemEventCode = 0x02

	// A written output was mirrored to the object store.
	/* Context usage:
	 * RelPath, OutputPath
	 */
	EVENT_CODE_FILE_UPLOADED SystemEventCode = 0x03

	// The initial batch has finished. In watch mode it fires once the watcher is armed.
	EVENT_CODE_BATCH_COMPLETED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 1024

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

// EventSystem dispatches events to registered listeners. Events may be fired
// from any goroutine; callbacks run on the firing goroutine.
type EventSystem struct {
	mutex      sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

func (es *EventSystem) Shutdown() error {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	// Free the events arrays. And objects pointed to should be destroyed on their own.
	es.registered = make(map[SystemEventCode][]*registeredEvent)
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. A listener
 * can be registered only once per code; a duplicate returns false.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @param onEvent The callback to be invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	es.mutex.Lock()
	defer es.mutex.Unlock()

	for _, e := range es.registered[code] {
		if e.listener == listener {
			LogWarn("event %d: listener already registered", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code.
 * @returns true if the listener was found and removed; otherwise false.
 */
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) bool {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	es.mutex.RLock()
	events := es.registered[code]
	es.mutex.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
