// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package protocol

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Party records who was found honest for a claim. It only ever moves from
// PartyNone to one of the two other values.
type Party uint8

const (
	PartyNone Party = iota
	PartyClaimer
	PartyChallenger
)

func (p Party) String() string {
	switch p {
	case PartyNone:
		return "unresolved"
	case PartyClaimer:
		return "claimer_honest"
	case PartyChallenger:
		return "challenger_honest"
	default:
		return "invalid"
	}
}

func (p Party) IsTerminal() bool {
	return p == PartyClaimer || p == PartyChallenger
}

// Claim mirrors the outbox's claim struct field for field. The outbox only
// stores its hash, so every call that takes a claim must pass exactly the
// struct that was last observed.
type Claim struct {
	StateRoot               common.Hash
	Claimer                 common.Address
	TimestampClaimed        uint32
	TimestampVerification   uint32
	BlockNumberVerification uint32
	Honest                  Party
	Challenger              common.Address
}

// ClaimRecord is a claim as reported by the index, together with its epoch.
type ClaimRecord struct {
	Epoch uint64
	Claim Claim
}

func (c Claim) IsChallenged() bool {
	return c.Challenger != (common.Address{})
}

func (c Claim) VerificationStarted() bool {
	return c.TimestampVerification != 0
}

// HashClaim computes the same digest as the outbox's hashClaim: keccak256 of
// the tightly packed struct.
func HashClaim(c Claim) common.Hash {
	buf := make([]byte, 0, 32+20+4+4+4+1+20)
	buf = append(buf, c.StateRoot.Bytes()...)
	buf = append(buf, c.Claimer.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, c.TimestampClaimed)
	buf = binary.BigEndian.AppendUint32(buf, c.TimestampVerification)
	buf = binary.BigEndian.AppendUint32(buf, c.BlockNumberVerification)
	buf = append(buf, byte(c.Honest))
	buf = append(buf, c.Challenger.Bytes()...)
	return crypto.Keccak256Hash(buf)
}
