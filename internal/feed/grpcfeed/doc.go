// Package grpcfeed implements slot streams over gRPC.
//
// Two services are supported:
//   - Yellowstone Geyser Subscribe (bidirectional, server pings must be answered)
//   - Jito ShredStream proxy SubscribeEntries (server streaming)
//
// Messages are encoded and decoded field by field with protowire and carried
// through gRPC by a pass-through codec, so no generated stubs are needed for
// the handful of fields the race reads.
package grpcfeed
