// Package visitor implements the Gatepass visitor registry.
//
// A visitor is an identity record reused across visits; the normalized phone
// number is its natural key and is what the blacklist matches on. Records are
// immutable once created except for corrections by an admin.
//
// This package is intentionally dependency-light: store interfaces plus
// normalization rules used by the visit and blacklist subsystems.
package visitor
