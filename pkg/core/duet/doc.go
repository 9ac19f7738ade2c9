// Package duet pairs a speaking session with a function session.
//
// The Coordinator connects, disconnects and feeds both sessions as a unit.
// The Notifier carries short status messages from tool execution into the
// speaking session so the narrator can talk about work the function session
// started.
package duet
