// Package enrich synthesizes an initial quote snapshot for a symbol
// that has no cached value yet.
//
// Sources, in priority order:
//   - Outside regular hours: the chart endpoint first (it carries
//     pre/post session prices the primary endpoint does not)
//   - The primary latest-quote endpoint, with a best-effort bars fetch
//     to backfill day range, volume, and previous close
//   - Bars alone, synthesizing a quote from the latest close
//
// Concurrent resolutions for the same symbol are coalesced so
// rate-limited providers see at most one outbound call per symbol at
// a time.
package enrich
