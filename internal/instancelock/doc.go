// Package instancelock guarantees that at most one nfckeyboard process drives
// the card reader on a machine.
//
// Two strategies are available. FileLock holds a non-blocking exclusive
// advisory lock (gofrs/flock) for the life of the process; the kernel drops it
// when the descriptor closes, crash included. HeartbeatLock writes the holder
// pid into a plain file, rewrites it periodically with a timestamp, and lets a
// new instance reclaim a file whose modification time is older than the
// configured timeout.
//
// Acquisition never waits or retries: a held lock yields ErrAlreadyRunning and
// the caller is expected to exit.
package instancelock
