// Package gesture owns the placement gesture core.
//
// Responsibilities: classifying one hand's joints as an L-shape (thumb
// held wide of the index finger) or a tap (thumb tip touching the index
// tip), and running the debounce state machine that turns a held tap on
// the opposite hand into a single placement event.
// Key types: Engine, GestureState, Event, Sink.
//
// The package never blocks and never returns errors. Missing tracking data
// resolves to "not detected", which suppresses every event.
package gesture
