// Package main hosts the nfckeyboard CLI entrypoint and command graph.
//
// Running the binary without a subcommand starts the card watcher in the
// foreground. The remaining commands talk to that process over its IPC socket
// (status, pause, resume, stop), inspect the reader directly (readers, beep,
// check), tail run logs, or scaffold configuration.
package main
