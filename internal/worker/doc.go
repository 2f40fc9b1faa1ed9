// Package worker implements the worker side of the task farm: receive a
// task from the coordinator, execute it, reply with the result, and stop on
// SHUTDOWN.
package worker
