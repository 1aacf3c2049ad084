package vock

// OnPeerCreate sets the callback for newly created sessions.
func (m *Manager) OnPeerCreate(callback PeerCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.peerCreateCb = callback
}

// OnPeerConnect sets the callback for sessions completing the handshake.
func (m *Manager) OnPeerConnect(callback PeerConnectCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.peerConnectCb = callback
}

// OnPeerClose sets the callback for closed sessions.
func (m *Manager) OnPeerClose(callback PeerCloseCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.peerCloseCb = callback
}

// OnPeerText sets the callback for inbound text messages.
func (m *Manager) OnPeerText(callback PeerTextCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.peerTextCb = callback
}

// OnPeerUndelivered sets the callback for reliable packets abandoned
// without an acknowledgement.
func (m *Manager) OnPeerUndelivered(callback PeerUndeliveredCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.peerUndeliveredCb = callback
}

// OnNATTraversal sets the callback for successful port mappings.
func (m *Manager) OnNATTraversal(callback NATTraversalCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.natTraversalCb = callback
}

// OnError sets the callback for non-fatal errors.
func (m *Manager) OnError(callback ErrorCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.errorCb = callback
}

// OnAuthorize sets the callback asked whether a fingerprint may connect.
// reply may be called later from any goroutine.
func (m *Manager) OnAuthorize(callback AuthorizeCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.authorizeCb = callback
}

func (m *Manager) emitError(err error) {
	m.cbMu.RLock()
	cb := m.errorCb
	m.cbMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

func (m *Manager) emitNATTraversal(protocol string, port int) {
	m.cbMu.RLock()
	cb := m.natTraversalCb
	m.cbMu.RUnlock()
	if cb != nil {
		cb(protocol, port)
	}
}
