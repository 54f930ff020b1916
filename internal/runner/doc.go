// Package runner wires configuration into feed adapters and drives a slot
// race, a single-feed tail or a live latest-slot watch.
package runner
