// Package rulings owns the local oracle rulings cache.
//
// A Cache holds the parsed corpus in memory with an expiry derived from the
// configured refresh interval. Cold or expired caches are refilled on a
// background job that downloads the corpus, parses it, swaps the record set
// wholesale and persists it through a Store. Only one refresh runs at a time;
// overlapping requests are dropped. Readers always see either the previous or
// the new record set, never a mix.
//
// Two stores are provided: a JSON file guarded by an advisory file lock, and
// a SQLite database. Both round-trip every record field exactly.
package rulings
