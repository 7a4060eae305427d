// Package ipc exposes the running watcher over JSON-RPC on a Unix socket and
// ships the matching client used by the CLI.
//
// The socket lives in the state directory. Only control and status calls are
// offered; card UIDs never cross the socket.
package ipc
