// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"fmt"

	"github.com/joeycumines/go-loopbridge/internal/slotpool"
	"github.com/joeycumines/logiface"
)

// ReleasePolicy controls what Release does with callbacks that are still
// pending.
type ReleasePolicy int

const (
	// ReleaseRequireEmpty treats pending callbacks at Release as misuse, and
	// panics with ErrPendingOnRelease. This is the default.
	ReleaseRequireEmpty ReleasePolicy = iota
	// ReleaseDrain runs any pending callbacks on the home goroutine, once the
	// signal has closed, immediately before the bridge is finalized.
	ReleaseDrain
)

// String returns a human-readable representation of the policy.
func (p ReleasePolicy) String() string {
	switch p {
	case ReleaseRequireEmpty:
		return "RequireEmpty"
	case ReleaseDrain:
		return "Drain"
	default:
		return "Unknown"
	}
}

// bridgeOptions holds configuration options for Bridge creation.
type bridgeOptions struct {
	logger    *logiface.Logger[logiface.Event]
	token     any
	onClosed  func()
	chunkSize int
	maxChunks int
	policy    ReleasePolicy
}

// Option configures a Bridge instance.
type Option interface {
	applyBridge(*bridgeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyBridgeFunc func(*bridgeOptions) error
}

func (o *optionImpl) applyBridge(opts *bridgeOptions) error {
	return o.applyBridgeFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging
// (the default).
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithToken associates an opaque value, identifying the embedding
// environment, with the bridge. See Bridge.Token.
func WithToken(token any) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		opts.token = token
		return nil
	}}
}

// WithChunkSize sets the number of callback slots allocated at a time.
// Defaults to 16.
func WithChunkSize(n int) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		if n < 1 {
			return fmt.Errorf("%w: chunk size %d", ErrInvalidOption, n)
		}
		opts.chunkSize = n
		return nil
	}}
}

// WithMaxChunks bounds the number of slot chunks, where 0 means unbounded
// (the default). Enqueue panics if the bound would be exceeded.
func WithMaxChunks(n int) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		if n < 0 {
			return fmt.Errorf("%w: max chunks %d", ErrInvalidOption, n)
		}
		opts.maxChunks = n
		return nil
	}}
}

// WithReleasePolicy sets the ReleasePolicy. Defaults to ReleaseRequireEmpty.
func WithReleasePolicy(policy ReleasePolicy) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		switch policy {
		case ReleaseRequireEmpty, ReleaseDrain:
		default:
			return fmt.Errorf("%w: release policy %d", ErrInvalidOption, policy)
		}
		opts.policy = policy
		return nil
	}}
}

// WithOnClosed registers a function to be called on the home goroutine, once
// the bridge has been finalized. No callback of the bridge runs after it.
func WithOnClosed(fn func()) Option {
	return &optionImpl{func(opts *bridgeOptions) error {
		opts.onClosed = fn
		return nil
	}}
}

// resolveOptions applies Option instances to bridgeOptions.
func resolveOptions(opts []Option) (*bridgeOptions, error) {
	cfg := &bridgeOptions{
		chunkSize: slotpool.DefaultChunkSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBridge(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
