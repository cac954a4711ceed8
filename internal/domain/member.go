package domain

// ConnID identifies one transport-level connection.
type ConnID string

// Member represents a connection's participation meta, without transport.
type Member struct {
	ID         ConnID
	Identity   Identity
	RemoteAddr string
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id ConnID, identity Identity, remoteAddr string) *Member {
	return &Member{ID: id, Identity: identity, RemoteAddr: remoteAddr}
}
