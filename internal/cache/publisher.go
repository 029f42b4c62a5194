package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mesh-trading-engine/internal/consensus"
	"mesh-trading-engine/internal/gate"
)

// Key and channel names for published engine state.
const (
	KeyDirective     = "engine:directive"
	KeyDecisions     = "engine:decisions"
	ChannelDirective = "engine:directive:updates"
	ChannelDecisions = "engine:decisions:updates"

	stateTTL = 5 * time.Minute
)

// StatePublisher pushes per-cycle engine state into Redis: last value under
// a key for poll-style consumers, plus a pub/sub notification. Implements
// the engine's publisher interface with the cache service's circuit breaker
// semantics, so a dead Redis degrades to a warning, never a stalled cycle.
type StatePublisher struct {
	cs *CacheService
}

// NewStatePublisher wraps the cache service.
func NewStatePublisher(cs *CacheService) *StatePublisher {
	return &StatePublisher{cs: cs}
}

// PublishDirective stores and announces the cycle's directive.
func (p *StatePublisher) PublishDirective(ctx context.Context, d gate.Directive) error {
	return p.publish(ctx, KeyDirective, ChannelDirective, d)
}

// PublishDecisions stores and announces the cycle's consensus decisions.
func (p *StatePublisher) PublishDecisions(ctx context.Context, decisions map[string]consensus.Decision) error {
	return p.publish(ctx, KeyDecisions, ChannelDecisions, decisions)
}

func (p *StatePublisher) publish(ctx context.Context, key, channel string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := p.cs.Set(ctx, key, string(data), stateTTL); err != nil {
		return err
	}
	return p.cs.Publish(ctx, channel, string(data))
}
