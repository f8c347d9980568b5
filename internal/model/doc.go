// Package model defines shared data types used across the hub.
//
// Conventions:
//   - Prices and sizes: float64, as reported by the providers
//   - Timestamps: time.Time, provider-reported event time
//   - Symbols: uppercase strings, the cache/registry key
package model
