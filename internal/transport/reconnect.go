package transport

import "time"

// Default reconnection parameters.
const (
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultMaxReconnects      = 5
)

// ReconnectPolicy controls automatic reconnection. The attempt counter is
// transient: any successful connection resets it to zero.
type ReconnectPolicy struct {
	// BaseDelay is the first retry delay; attempt k waits
	// BaseDelay * 2^(k-1).
	BaseDelay time.Duration

	// MaxAttempts is the number of consecutive failures tolerated before
	// the disconnect becomes terminal.
	MaxAttempts int
}

// withDefaults fills zero values with the package defaults.
func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultReconnectBaseDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxReconnects
	}
	return p
}

// Delay returns the backoff before attempt k (1-based).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	return p.BaseDelay << (attempt - 1)
}
