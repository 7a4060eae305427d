// Package pcsc is the narrow device command surface used by nfckeyboard.
//
// It exposes a Context/Card pair covering the handful of PC/SC calls the
// program needs (list readers, open a direct or card session, transmit,
// control, disconnect) so that the card watcher and device preparation can be
// exercised against fakes. Establish returns the real implementation backed by
// github.com/ebfe/scard.
//
// The package also owns the fixed command constants: the GET UID APDU, the
// beep-disable escape payload, the success status word, and the host-specific
// SCARD_CTL_CODE computation used to send escape commands.
package pcsc
