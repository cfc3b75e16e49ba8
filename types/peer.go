package types

import "fmt"

// Peer identifies a node in the permissioned network. ID is the transport
// level identity (for the libp2p transport, an encoded peer id) and Address
// is where the peer can be dialed. The pipeline treats both as opaque.
type Peer struct {
	ID      string
	Address string
}

func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Address)
}
