package state

var genesisMarkerKey = []byte("node/genesis-applied")

// GenesisApplied reports whether the node bootstrap has been committed.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.KVHas(genesisMarkerKey)
}

func (m *Manager) MarkGenesisApplied() error {
	return m.KVPut(genesisMarkerKey, true)
}
