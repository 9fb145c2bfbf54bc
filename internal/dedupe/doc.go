// Package dedupe provides the set-if-absent lock store used for inbound
// duplicate suppression and per-message consumer locks.
//
// Two implementations share the Locker interface: an in-memory TTL store for
// single-node deployments and a Redis SETNX store for multi-instance ones.
package dedupe
