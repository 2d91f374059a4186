// Package gate coordinates admission at the compound entrance: it resolves
// presented credentials, enforces consent, the blacklist and the arrival
// window, and drives the atomic consume-and-admit step so a credential is
// spent at most once under any interleaving.
package gate
