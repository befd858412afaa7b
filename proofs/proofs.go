// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

// Package proofs assembles inclusion proofs and message payloads from the
// index. Lookups fail soft: anything the index cannot answer yields an empty
// result, which callers treat as "not ready, retry later".
package proofs

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/offchainlabs/epoch-bridge/protocol"
	"github.com/offchainlabs/epoch-bridge/util/merkletree"
)

const (
	DefaultCacheSize   = 4096
	maxParallelLookups = 8
)

var (
	cacheHitCounter  = metrics.NewRegisteredCounter("proofs/cache/hits", nil)
	notReadyCounter  = metrics.NewRegisteredCounter("proofs/notready", nil)
	lookupErrCounter = metrics.NewRegisteredCounter("proofs/errors", nil)
)

// Service resolves proofs through an index. Tree nodes are keyed by the leaf
// range they cover, so a resolved node never changes and is cached.
type Service struct {
	index protocol.Index
	nodes *lru.Cache[merkletree.NodeKey, common.Hash]
}

func NewService(index protocol.Index, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	nodes, err := lru.New[merkletree.NodeKey, common.Hash](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{index: index, nodes: nodes}, nil
}

func (s *Service) nodeHash(ctx context.Context, key merkletree.NodeKey) (common.Hash, error) {
	if h, ok := s.nodes.Get(key); ok {
		cacheHitCounter.Inc(1)
		return h, nil
	}
	h, err := s.index.NodeHash(ctx, key)
	if err != nil {
		return common.Hash{}, err
	}
	s.nodes.Add(key, h)
	return h, nil
}

func logLookupFailure(what string, nonce uint64, err error) {
	if errors.Is(err, protocol.ErrNotFound) {
		notReadyCounter.Inc(1)
		log.Debug("Index not caught up", "lookup", what, "nonce", nonce, "err", err)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	lookupErrCounter.Inc(1)
	log.Warn("Index lookup failed", "lookup", what, "nonce", nonce, "err", err)
}

// GetProof returns the sibling hashes, bottom first, proving leaf nonce
// against the snapshot of count leaves. The result is empty if nonce is not
// covered by the snapshot or any node is missing from the index.
func (s *Service) GetProof(ctx context.Context, nonce, count uint64) []common.Hash {
	keys := merkletree.ProofIndices(nonce, count)
	if len(keys) == 0 {
		return nil
	}
	proof := make([]common.Hash, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			h, err := s.nodeHash(gctx, key)
			if err != nil {
				return err
			}
			proof[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logLookupFailure("proof", nonce, err)
		return nil
	}
	return proof
}

// GetMessagePayload returns the message with the given nonce, or nil if the
// index does not have it.
func (s *Service) GetMessagePayload(ctx context.Context, nonce uint64) *protocol.Message {
	msg, err := s.index.MessagePayload(ctx, nonce)
	if err != nil {
		logLookupFailure("message", nonce, err)
		return nil
	}
	return msg
}

// GetRelayData fetches the proof and payload for nonce concurrently. ok is
// false unless both are available.
func (s *Service) GetRelayData(ctx context.Context, nonce, count uint64) (msg *protocol.Message, proof []common.Hash, ok bool) {
	if nonce >= count {
		return nil, nil, false
	}
	var g errgroup.Group
	g.Go(func() error {
		proof = s.GetProof(ctx, nonce, count)
		return nil
	})
	g.Go(func() error {
		msg = s.GetMessagePayload(ctx, nonce)
		return nil
	})
	_ = g.Wait()
	// A one-leaf tree has an empty proof.
	if msg == nil || (len(proof) == 0 && count > 1) {
		return nil, nil, false
	}
	return msg, proof, true
}
