// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

// Message is one leaf of the inbox tree. Nonce is its leaf index.
type Message struct {
	Nonce  uint64
	To     common.Address
	Sender common.Address
	Data   []byte
}

// MessageBytes is the packed encoding the inbox commits to:
// uint64 nonce || to || sender || data.
func MessageBytes(nonce uint64, to, sender common.Address, data []byte) []byte {
	buf := make([]byte, 0, 8+20+20+len(data))
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	buf = append(buf, to.Bytes()...)
	buf = append(buf, sender.Bytes()...)
	buf = append(buf, data...)
	return buf
}

// Payload is the message argument of the outbox's sendMessage. The outbox
// rebuilds the leaf from nonce, to and payload, so it carries the sender.
func (m *Message) Payload() []byte {
	payload := make([]byte, 0, common.AddressLength+len(m.Data))
	payload = append(payload, m.Sender.Bytes()...)
	return append(payload, m.Data...)
}

func (m *Message) Leaf() common.Hash {
	return merkletree.LeafHash(MessageBytes(m.Nonce, m.To, m.Sender, m.Data))
}

// Snapshot is the root and leaf count checkpointed on the source chain for an
// epoch.
type Snapshot struct {
	Epoch     uint64
	StateRoot common.Hash
	Count     uint64
}

// Route identifies one bridge direction run by a single process.
type Route struct {
	Network string
	ChainID uint64
}

func (r Route) String() string {
	return fmt.Sprintf("%s_%d", r.Network, r.ChainID)
}
