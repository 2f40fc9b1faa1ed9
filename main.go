// Package main provides the entry point for the taskfarm CLI.
package main

import "yqhp/taskfarm/cmd"

func main() {
	cmd.Execute()
}
