package stepup

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use: Build may be called
// once.
type Builder struct {
	config Config
	redis  *redis.Client

	sender CodeSender
	policy AccessPolicy

	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the shared Redis client backing both stores.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCodeSender sets the out-of-band code delivery collaborator. Required.
func (b *Builder) WithCodeSender(sender CodeSender) *Builder {
	b.sender = sender
	return b
}

// WithAccessPolicy sets the resource permission collaborator. Required.
func (b *Builder) WithAccessPolicy(policy AccessPolicy) *Builder {
	b.policy = policy
	return b
}

// WithAuditSink sets the audit sink and enables audit dispatch.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authorize latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores, and starts the audit
// dispatcher and reaper.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.sender == nil {
		return nil, errors.New("code sender required")
	}
	if b.policy == nil {
		return nil, errors.New("access policy required")
	}

	engine := &Engine{
		config:         cfg,
		challengeStore: newAccessChallengeStore(b.redis, cfg.Verification.RedisPrefix),
		sessionStore:   newAccessSessionStore(b.redis, cfg.Session.RedisPrefix),
		sender:         b.sender,
		policy:         b.policy,
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.reaper = newReaper(engine, engine.challengeStore, cfg.Reaper)

	b.built = true

	return engine, nil
}
