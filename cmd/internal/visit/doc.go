// Package visit owns the authoritative lifecycle of a visit: the status
// state machine, the persistence boundary with compare-and-swap transitions,
// and the resident-facing approval workflow.
//
// Every status change is a conditional update on the expected prior status,
// so concurrent callers racing on the same visit see exactly one winner; the
// losers observe ErrInvalidTransition and the row is left untouched.
// Consuming a credential and entering checked_in is a single such update,
// performed by the gate coordinator through Store.CheckIn.
package visit
