// Package transport implements the datagram layer of vock.
//
// A [Socket] owns one UDP endpoint. It serializes [wire.Packet] values,
// sends them either directly to a peer or wrapped in a relay envelope
// through the rendezvous server, and dispatches inbound datagrams to
// handlers registered per protocol. Envelopes arriving from the server are
// unwrapped so that handlers see the original packet, the original sender
// and a relayed flag.
//
// Binding is asynchronous. [Socket.Bind] first looks for an existing port
// mapping it can reuse, otherwise binds a fresh port and asks every
// configured [PortMapper] (UPnP and NAT-PMP by default) to map it. Packets
// sent before the socket is bound are queued and flushed in order.
//
//	sock := transport.NewSocket(transport.SocketOptions{Server: serverAddr, PortMapping: true})
//	sock.OnNATTraversal(func(protocol string, port int) { ... })
//	sock.Handle("", func(p *wire.Packet, from *net.UDPAddr, relayed bool) { ... })
//	sock.Bind(ctx)
//	sock.Send(packet, peerAddr)
package transport
