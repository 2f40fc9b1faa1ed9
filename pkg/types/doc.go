// Package types defines the core data structures shared by the manager,
// the workers and the transports of the task farm.
//
// This package contains:
//   - Task and Result, joined by the task ID
//   - the tagged Message exchanged between coordinator and workers
//   - the Report returned once every worker has been shut down
package types
