package stepup

import (
	"errors"
	"time"
)

// Config defines a public type used by stepup APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Verification VerificationConfig
	Session      SessionConfig
	Reaper       ReaperConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls challenge issuance and code checking.
type VerificationConfig struct {
	// CodeTTL is how long a code stays valid after issuance.
	CodeTTL time.Duration
	// OTPDigits is the length of the numeric code.
	OTPDigits int
	// MaxAttempts bounds wrong submissions before a challenge is exhausted.
	MaxAttempts int
	// RedisPrefix namespaces challenge keys.
	RedisPrefix string
	// Retention is how long terminal challenge records (verified, expired,
	// exhausted) stay in Redis for audit before the key TTL purges them.
	Retention time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the access sessions minted after verification.
type SessionConfig struct {
	// SessionTTL is the access-session lifetime. Sessions carry no renewal
	// mechanism; once expired a fresh challenge/verify cycle is required.
	SessionTTL time.Duration
	// TokenBytes is the raw entropy of the opaque token. Minimum 16 (128 bits).
	TokenBytes int
	// RedisPrefix namespaces session keys.
	RedisPrefix string
}

/*
====================================
REAPER CONFIG
====================================
*/

// ReaperConfig controls the background storage-hygiene sweep.
type ReaperConfig struct {
	Enabled  bool
	Interval time.Duration
	// ScanCount is the COUNT hint passed to Redis SCAN.
	ScanCount int64
}

// AuditConfig defines a public type used by stepup APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	DropIfFull bool
}

// MetricsConfig defines a public type used by stepup APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the recommended production defaults: 6-digit codes
// valid for 10 minutes with 5 attempts, 30-minute sessions, and a 24-hour
// challenge retention window.
func DefaultConfig() Config {
	return Config{
		Verification: VerificationConfig{
			CodeTTL:     10 * time.Minute,
			OTPDigits:   6,
			MaxAttempts: 5,
			RedisPrefix: "avc",
			Retention:   24 * time.Hour,
		},
		Session: SessionConfig{
			SessionTTL:  30 * time.Minute,
			TokenBytes:  32,
			RedisPrefix: "avs",
		},
		Reaper: ReaperConfig{
			Enabled:   true,
			Interval:  5 * time.Minute,
			ScanCount: 256,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency. Called by
// [Builder.Build]; safe to call directly.
func (c *Config) Validate() error {
	// Verification
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Verification.CodeTTL > time.Hour {
		return errors.New("Verification CodeTTL must be <= 1h")
	}
	if c.Verification.OTPDigits < 6 || c.Verification.OTPDigits > 10 {
		return errors.New("Verification OTPDigits must be between 6 and 10")
	}
	if c.Verification.MaxAttempts <= 0 {
		return errors.New("Verification MaxAttempts must be > 0")
	}
	if c.Verification.MaxAttempts > 10 {
		return errors.New("Verification MaxAttempts must be <= 10")
	}
	if c.Verification.RedisPrefix == "" {
		return errors.New("Verification RedisPrefix must not be empty")
	}
	if c.Verification.Retention < c.Verification.CodeTTL {
		return errors.New("Verification Retention must be >= CodeTTL")
	}

	// Session
	if c.Session.SessionTTL <= 0 {
		return errors.New("Session SessionTTL must be > 0")
	}
	if c.Session.TokenBytes < 16 {
		return errors.New("Session TokenBytes must be >= 16")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.RedisPrefix == c.Verification.RedisPrefix {
		return errors.New("Session RedisPrefix must differ from Verification RedisPrefix")
	}

	// Reaper
	if c.Reaper.Enabled {
		if c.Reaper.Interval <= 0 {
			return errors.New("Reaper Interval must be > 0 when enabled")
		}
		if c.Reaper.ScanCount <= 0 {
			return errors.New("Reaper ScanCount must be > 0 when enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
