// Package vock implements a peer-to-peer voice call stack.
//
// A Manager owns one UDP socket and a session per remote endpoint. Peers
// meet through a rendezvous server: one side creates a room, the other
// joins it, and each learns the other's address. Sessions then run an
// authenticated key exchange and carry voice and text encrypted under the
// derived key, directly when the network allows and through the server's
// relay otherwise.
//
// # Getting Started
//
//	options := vock.NewOptions()
//	options.Server = "rendezvous.example.org:43210"
//	options.ApplyEnv()
//
//	m, err := vock.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	m.OnAuthorize(func(fingerprint string, reply func(bool)) {
//	    reply(askUser(fingerprint))
//	})
//	m.OnPeerConnect(func(s *peer.Session, mode peer.Mode) {
//	    fmt.Println("connected", s.Addr(), mode)
//	})
//
//	if err := m.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	id, _ := m.Create(ctx)
//	fmt.Println("room", id)
//	m.Watch(ctx, id)
//
// # Audio
//
// Captured frames from Options.Capture are encoded once and sent to every
// accepted session unless muted. Each session plays into its own slot of
// an audio.Mixer, and the mix is written to Options.Playback every 20ms.
//
// # Authorization
//
// The first time a fingerprint tries to connect, the OnAuthorize callback
// is asked. Only one question is outstanding at a time across all peers;
// answers are cached for the life of the Manager.
package vock
