// Package feed implements the upstream feed connector.
//
// The connector:
//   - Maintains exactly one WebSocket connection to the provider
//   - Authenticates with a key/secret message after connecting
//   - Decodes batched event records and merges them into the quote cache
//   - Fans merged quotes out to downstream subscribers
//   - Reconnects with a fixed delay and resubscribes the registry's
//     active symbol set after an outage
package feed
