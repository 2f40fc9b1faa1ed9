// Package transport defines the point-to-point channel the coordinator and
// the workers talk over, and provides an in-process implementation.
//
// Every implementation preserves message order per (sender, receiver) pair,
// delivers any-source receives in arrival order, and moves messages by value.
package transport
