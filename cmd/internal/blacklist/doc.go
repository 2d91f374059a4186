// Package blacklist maintains per-host deny entries for visitors and
// answers the admission gate's block checks by visitor id or phone.
package blacklist
