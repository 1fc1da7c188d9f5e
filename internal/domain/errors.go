package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
	ErrDetectionTimeout = errors.New("detection timed out")
	ErrMalformedGraph   = errors.New("malformed graph")
	ErrEmptyAllowlist   = errors.New("quote allowlist is empty")
	ErrUnknownStrategy  = errors.New("unknown detection strategy")
	ErrNoMarkets        = errors.New("no tradable markets")
)

// FetchKind separates retry-safe fetch failures from credential or config ones.
type FetchKind string

const (
	FetchTransient FetchKind = "transient"
	FetchTerminal  FetchKind = "terminal"
)

// FetchError is a market data failure scoped to one exchange.
type FetchError struct {
	Exchange ExchangeID
	Kind     FetchKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Exchange, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the next iteration may reasonably retry.
func (e *FetchError) Transient() bool { return e.Kind == FetchTransient }

// NewFetchError wraps err for exchange. An err that already is a FetchError
// keeps its kind.
func NewFetchError(exchange ExchangeID, kind FetchKind, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return &FetchError{Exchange: exchange, Kind: fe.Kind, Err: fe.Err}
	}
	return &FetchError{Exchange: exchange, Kind: kind, Err: err}
}

// DataError describes a malformed or incomplete ticker. The offending edge is
// dropped and the build continues.
type DataError struct {
	Symbol string
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("ticker %s: field %s: %s", e.Symbol, e.Field, e.Reason)
}

// ConfigError lists every invalid run parameter found during validation.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "config: " + strings.Join(e.Problems, "; ")
}

// Add appends a formatted problem.
func (e *ConfigError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns nil when no problems were recorded.
func (e *ConfigError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}
