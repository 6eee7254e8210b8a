// Package domain holds the pure data model of the conversation engine:
// flow and menu definitions, per-user sessions, inbound events, outbound
// messages and action results.
//
// Nothing in this package performs I/O. Flow and menu definitions are built by
// the catalog package and are treated as immutable afterwards; sessions are
// only mutated by the engine.
package domain
