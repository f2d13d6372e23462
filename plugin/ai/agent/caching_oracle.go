package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/calbook/plugin/ai/cache"
	"github.com/hrygo/calbook/plugin/ai/schedule"
)

// DefaultOracleCacheTTL is how long an interpretation is reused.
const DefaultOracleCacheTTL = 10 * time.Minute

// CachingOracle reuses interpretations of identical utterances made in the
// same conversation state on the same day. Intents keep time expressions as
// phrased, so a cached "tomorrow" still resolves against the turn's now.
type CachingOracle struct {
	next  Oracle
	cache cache.Cache
	ttl   time.Duration
}

var _ Oracle = (*CachingOracle)(nil)

// NewCachingOracle wraps next with c. A non-positive ttl uses DefaultOracleCacheTTL.
func NewCachingOracle(next Oracle, c cache.Cache, ttl time.Duration) *CachingOracle {
	if ttl <= 0 {
		ttl = DefaultOracleCacheTTL
	}
	return &CachingOracle{next: next, cache: c, ttl: ttl}
}

// Name implements Oracle.
func (o *CachingOracle) Name() string {
	return o.next.Name()
}

// Interpret implements Oracle.
func (o *CachingOracle) Interpret(ctx context.Context, utterance string, cc ConversationContext) (schedule.Intent, error) {
	key := o.key(utterance, cc)
	if data, ok := o.cache.Get(ctx, key); ok {
		var intent schedule.Intent
		if err := json.Unmarshal(data, &intent); err == nil {
			return intent, nil
		}
		slog.Debug("dropping undecodable oracle cache entry", "key", key)
	}

	intent, err := o.next.Interpret(ctx, utterance, cc)
	if err != nil {
		return intent, err
	}
	if data, err := json.Marshal(intent); err == nil {
		if err := o.cache.Set(ctx, key, data, o.ttl); err != nil {
			slog.Debug("failed to cache interpretation", "error", err)
		}
	}
	return intent, nil
}

// key covers everything a rule-based interpretation depends on.
func (o *CachingOracle) key(utterance string, cc ConversationContext) string {
	day := cc.Now
	if cc.Location != nil {
		day = day.In(cc.Location)
	}
	pending := ""
	if cc.Pending != nil {
		if data, err := json.Marshal(cc.Pending); err == nil {
			pending = string(data)
		}
	}
	last := ""
	if cc.LastEvent != nil {
		last = cc.LastEvent.ID
	}
	return cache.Key("oracle", o.next.Name(), day.Format(time.DateOnly),
		strings.ToLower(normalizeUtterance(utterance)), pending, last)
}
