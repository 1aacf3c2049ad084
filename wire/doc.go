// Package wire implements the binary datagram format shared by vock peers,
// the relay envelope and the rendezvous API.
//
// Every datagram is one Packet. Packets are field-keyed: each field carries
// its own field number and wire type (the protobuf wire format, via
// google.golang.org/protobuf/encoding/protowire), so absent fields cost
// nothing and unknown fields from newer peers are skipped.
//
// Example:
//
//	raw, err := (&wire.Packet{Type: wire.TypePing, Group: wire.GroupHandshake, Seq: 7}).Marshal()
//	if err != nil {
//	    return err
//	}
//	packet, err := wire.Unmarshal(raw)
//
// Peer packets are identified by Type, encrypted peer packets by Box, relay
// envelopes and API messages by Protocol.
package wire
