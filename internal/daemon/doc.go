// Package daemon coordinates the long-running nfckeyboard process.
//
// Start performs the startup sequence in a fixed order: take the instance
// lock, establish the PC/SC context, select the first reader, silence the
// reader beep, then launch the hotplug monitor and the card watcher. Any of the
// first three failing aborts startup and releases what was already acquired;
// the beep step and hotplug monitor are best-effort.
//
// Keep orchestration logic here: the state machine lives in watcher, device
// access in pcsc, and UID delivery in dispatch.
package daemon
