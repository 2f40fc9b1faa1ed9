// Package manager implements the coordinator side of the task farm.
//
// A run primes every worker with one task (or a shutdown when the queue is
// already empty), then answers each TASK_DONE by re-feeding the worker that
// reported it. The run ends once every worker has been sent SHUTDOWN; at that
// point the manager has received exactly one TASK_DONE per task.
//
// All scheduling state lives inside a single Run call. A Manager may execute
// several runs, sequentially or concurrently, without them interfering.
package manager
