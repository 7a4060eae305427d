// Package daemonctl holds the client-side orchestration behind the status and
// stop commands: talking to a running instance over IPC, waiting for it to
// exit, and probing the reader and lock directly when nothing answers.
package daemonctl
