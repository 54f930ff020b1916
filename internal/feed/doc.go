// Package feed implements the feed side of a slot race.
//
// A feed:
//   - Dials one streaming source (see the grpcfeed and wsfeed packages)
//   - Stamps every slot sighting with the local receive time
//   - Suppresses duplicate slots (change or set policy)
//   - Pushes observations into a bounded queue for the race loop
//   - Skips undecodable messages; any other stream error ends the feed
package feed
