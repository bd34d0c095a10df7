// Package tibber is the client for the Tibber real-time measurement feed.
//
// Opening a subscription takes two steps:
//
//  1. A GraphQL query over HTTPS resolves the account's websocket
//     subscription URL and its homes.
//  2. A websocket speaking the graphql-transport-ws protocol authenticates
//     with connection_init and subscribes to liveMeasurement for one home.
//
// The returned Session delivers each liveMeasurement object as a
// measurement.Event on a bounded channel, answers server pings and sends
// its own keep-alive pings.
//
// Client implements supervisor.Feed, so reconnection and staleness are the
// supervisor's business, not this package's.
//
// # Security
//
// The API token is sent in the Authorization header and in the
// connection_init payload. It is never logged.
package tibber
