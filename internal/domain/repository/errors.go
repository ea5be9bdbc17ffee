package repository

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrInvalidSymbol       = errors.New("invalid symbol")
	ErrStoreConflict       = errors.New("store conflict")
	ErrNotFound            = errors.New("not found")
	ErrCacheMiss           = errors.New("cache miss")
	ErrNoPrice             = errors.New("no price available")
)

// FeedFailure classifies an upstream failure.
type FeedFailure string

const (
	FailNetwork       FeedFailure = "network"
	FailRateLimited   FeedFailure = "rate_limited"
	FailInvalidSymbol FeedFailure = "invalid_symbol"
)

// FeedError is returned by every PriceFeed on failure. It unwraps to the
// matching sentinel so callers can use errors.Is.
type FeedError struct {
	Kind   FeedFailure
	Feed   string
	Symbol string
	Err    error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s feed %s: %s: %v", e.Feed, e.Symbol, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s feed %s: %s", e.Feed, e.Symbol, e.Kind)
}

func (e *FeedError) Unwrap() []error {
	sentinel := ErrUpstreamUnavailable
	switch e.Kind {
	case FailRateLimited:
		sentinel = ErrRateLimited
	case FailInvalidSymbol:
		sentinel = ErrInvalidSymbol
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

func NewFeedError(kind FeedFailure, feed, symbol string, err error) *FeedError {
	return &FeedError{Kind: kind, Feed: feed, Symbol: symbol, Err: err}
}

// FailureKind extracts the kind from err, defaulting to network.
func FailureKind(err error) FeedFailure {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return FailRateLimited
	case errors.Is(err, ErrInvalidSymbol):
		return FailInvalidSymbol
	}
	return FailNetwork
}
