// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package epochbridgegen holds the ABI of the bridge contracts, limited to the
// entrypoints and events the watcher uses.
package epochbridgegen

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Claim is the low-level binding of the outbox's claim struct. Field names
// and widths must match the tuple components exactly for ABI packing.
type Claim struct {
	StateRoot               [32]byte
	Claimer                 common.Address
	TimestampClaimed        uint32
	TimestampVerification   uint32
	BlocknumberVerification uint32
	Honest                  uint8
	Challenger              common.Address
}

const claimTuple = `{"components":[` +
	`{"internalType":"bytes32","name":"stateRoot","type":"bytes32"},` +
	`{"internalType":"address","name":"claimer","type":"address"},` +
	`{"internalType":"uint32","name":"timestampClaimed","type":"uint32"},` +
	`{"internalType":"uint32","name":"timestampVerification","type":"uint32"},` +
	`{"internalType":"uint32","name":"blocknumberVerification","type":"uint32"},` +
	`{"internalType":"enum Party","name":"honest","type":"uint8"},` +
	`{"internalType":"address","name":"challenger","type":"address"}` +
	`],"internalType":"struct Claim","name":"_claim","type":"tuple"}`

const epochInput = `{"internalType":"uint256","name":"_epoch","type":"uint256"}`

func claimFunction(name, mutability string) string {
	return `{"inputs":[` + epochInput + `,` + claimTuple + `],"name":"` + name + `","outputs":[],"stateMutability":"` + mutability + `","type":"function"}`
}

func viewFunction(name, inputs, outType string) string {
	return `{"inputs":[` + inputs + `],"name":"` + name + `","outputs":[{"internalType":"` + outType + `","name":"","type":"` + outType + `"}],"stateMutability":"view","type":"function"}`
}

// OutboxMetaData contains the ABI of the destination-chain outbox.
var OutboxMetaData = &bind.MetaData{
	ABI: "[" +
		viewFunction("stateRoot", "", "bytes32") + "," +
		viewFunction("latestVerifiedEpoch", "", "uint256") + "," +
		viewFunction("claimHashes", `{"internalType":"uint256","name":"","type":"uint256"}`, "bytes32") + "," +
		`{"inputs":[` + claimTuple + `],"name":"hashClaim","outputs":[{"internalType":"bytes32","name":"hashedClaim","type":"bytes32"}],"stateMutability":"pure","type":"function"},` +
		viewFunction("isMsgRelayed", `{"internalType":"uint256","name":"_msgId","type":"uint256"}`, "bool") + "," +
		viewFunction("deposit", "", "uint256") + "," +
		viewFunction("epochPeriod", "", "uint256") + "," +
		viewFunction("sequencerDelayLimit", "", "uint256") + "," +
		viewFunction("minChallengePeriod", "", "uint256") + "," +
		`{"inputs":[` + epochInput + `,{"internalType":"bytes32","name":"_stateRoot","type":"bytes32"}],"name":"claim","outputs":[],"stateMutability":"payable","type":"function"},` +
		claimFunction("challenge", "payable") + "," +
		claimFunction("startVerification", "nonpayable") + "," +
		claimFunction("verifySnapshot", "nonpayable") + "," +
		claimFunction("withdrawClaimDeposit", "nonpayable") + "," +
		claimFunction("withdrawChallengeDeposit", "nonpayable") + "," +
		`{"inputs":[{"internalType":"bytes32[]","name":"_proof","type":"bytes32[]"},{"internalType":"uint64","name":"_msgId","type":"uint64"},{"internalType":"address","name":"_to","type":"address"},{"internalType":"bytes","name":"_message","type":"bytes"}],"name":"sendMessage","outputs":[],"stateMutability":"nonpayable","type":"function"},` +
		`{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"_claimer","type":"address"},{"indexed":true,"internalType":"uint256","name":"_epoch","type":"uint256"},{"indexed":false,"internalType":"bytes32","name":"_stateRoot","type":"bytes32"}],"name":"Claimed","type":"event"},` +
		`{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"_epoch","type":"uint256"},{"indexed":true,"internalType":"address","name":"_challenger","type":"address"}],"name":"Challenged","type":"event"},` +
		`{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"_epoch","type":"uint256"}],"name":"VerificationStarted","type":"event"},` +
		`{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"_epoch","type":"uint256"}],"name":"Verified","type":"event"}` +
		"]",
}

// InboxMetaData contains the ABI of the source-chain inbox.
var InboxMetaData = &bind.MetaData{
	ABI: "[" +
		viewFunction("epochPeriod", "", "uint256") + "," +
		viewFunction("count", "", "uint64") + "," +
		viewFunction("snapshots", `{"internalType":"uint256","name":"","type":"uint256"}`, "bytes32") + "," +
		`{"inputs":[],"name":"saveSnapshot","outputs":[],"stateMutability":"nonpayable","type":"function"},` +
		claimFunction("sendSnapshot", "nonpayable") + "," +
		`{"anonymous":false,"inputs":[{"indexed":false,"internalType":"bytes","name":"_nodeData","type":"bytes"}],"name":"MessageSent","type":"event"},` +
		`{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"_epoch","type":"uint256"},{"indexed":false,"internalType":"bytes32","name":"_stateRoot","type":"bytes32"},{"indexed":false,"internalType":"uint64","name":"_count","type":"uint64"}],"name":"SnapshotSaved","type":"event"},` +
		`{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"_epochSent","type":"uint256"},{"indexed":false,"internalType":"bytes32","name":"_ticketId","type":"bytes32"}],"name":"SnapshotSent","type":"event"}` +
		"]",
}

// TransactionBatcherMetaData contains the ABI of the call batcher.
var TransactionBatcherMetaData = &bind.MetaData{
	ABI: `[{"inputs":[{"internalType":"address[]","name":"targets","type":"address[]"},{"internalType":"uint256[]","name":"values","type":"uint256[]"},{"internalType":"bytes[]","name":"datas","type":"bytes[]"}],"name":"batchSend","outputs":[],"stateMutability":"payable","type":"function"}]`,
}
