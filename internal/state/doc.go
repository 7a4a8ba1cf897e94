// Package state holds the observable state of a managed Cuberite server:
// the running flag, the console log of the current run, run results, install
// progress and the derived install state.
//
// Everything here is safe for concurrent use. Observers subscribe to
// Subjects and receive values on a channel in publish order; publishers
// never block on observers.
package state
