// Package rendezvous implements room discovery and relaying.
//
// Peers that want to talk agree on a room id. The Client asks the server
// to create rooms, join them and list the other members, exchanging "api"
// packets over the same UDP socket the peers use for their sessions. The
// Server keeps rooms in memory and forwards "relay" envelopes between
// members whose direct path is blocked.
package rendezvous
