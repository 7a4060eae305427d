// Package watcher runs the card presence state machine.
//
// The watcher owns the reader for the life of the process. It starts in
// NoCard and probes the reader at the idle interval. A successful connection
// moves it to CardPresentUnprocessed, where the GET UID command is sent
// exactly once; the UID is dispatched on success and reported on failure, and
// either way the watcher moves to CardPresentProcessed. From there it probes at
// the faster removal interval until the card can no longer be reached, then
// returns to NoCard. Waiting for removal is the only deduplication mechanism:
// a card left on the reader is dispatched once per presence episode.
//
// Each call to Step performs one transition and returns the delay before the
// next one, which keeps the timing contract testable without real sleeps.
package watcher
