// Package wsfeed implements a slot feed over a JSON-RPC WebSocket
// subscription.
//
// The stream:
//   - Dials the endpoint and sends one subscribe request (slotSubscribe by default)
//   - Answers server pings and sends its own keepalive pings
//   - Reports the connection stale when no ping or pong arrives within PingTimeout
//   - Reads the slot from params.result.slot or params.result.context.slot
package wsfeed
