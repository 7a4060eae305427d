// Package preflight provides readiness checks for the card reader, the
// virtual keyboard device and the filesystem paths nfckeyboard depends on.
//
// These checks run in two contexts:
//   - `nfckeyboard check` runs RunAll and prints every result.
//   - `nfckeyboard status` uses individual probes (ProbeReaders, CheckLock)
//     when no instance answers on the socket.
//
// Each check is gated by its config toggle; unused features are skipped.
package preflight
