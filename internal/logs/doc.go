// Package logs reads the run log files behind `nfckeyboard logs`.
//
// Last returns the trailing lines of a file with bounded memory. Follow polls
// for appended lines and survives the current-run pointer being re-targeted
// when a new run starts.
package logs
