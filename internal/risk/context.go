package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/vigil/internal/history"
	"github.com/mbd888/vigil/internal/profile"
	"github.com/mbd888/vigil/internal/reputation"
)

// Default cache TTLs for context building blocks. Profiles move faster
// than payee reputation.
const (
	defaultProfileCacheTTL    = 5 * time.Minute
	defaultReputationCacheTTL = 10 * time.Minute
)

// ProfileSnapshot is the slice of a user profile the pipeline reads.
type ProfileSnapshot struct {
	UserID       string
	TrustScore   int
	RiskTier     string
	KnownDevices []string
	CreatedAt    time.Time
}

// KnowsDevice reports whether deviceID appears in the known-device set.
func (p *ProfileSnapshot) KnowsDevice(deviceID string) bool {
	for _, d := range p.KnownDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// PayeeReputation is the counterparty standing used by rules and scoring.
// An unknown payee gets the neutral reputation: new, score 0.5.
type PayeeReputation struct {
	Payee             string
	IsNew             bool
	TotalTransactions int
	FraudCount        int
	FraudRatio        float64
	ReputationScore   float64
	GoodHistory       bool
	RiskyHistory      bool

	// FirstTimeForUser is user-scoped: this sender has never completed a
	// transfer to this payee, even if the network knows the payee.
	FirstTimeForUser bool
}

// ContextStats extends rolling transaction statistics with account tenure.
type ContextStats struct {
	history.Stats
	TenureDays int
}

// UserContext is the read-only input to rule evaluation and scoring,
// rebuilt for every run.
type UserContext struct {
	Profile          ProfileSnapshot
	Stats            ContextStats
	Payee            PayeeReputation
	ImpossibleTravel bool
	EvaluatedAt      time.Time
}

// ContextCache is the optional read-through cache in front of the profile
// and reputation stores. Never a correctness dependency.
type ContextCache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// Aggregator assembles UserContext from the profile, history, and
// reputation stores. Store failures other than an unknown user degrade to
// conservative defaults instead of failing the run.
type Aggregator struct {
	profiles    profile.Store
	txns        history.Store
	reputations reputation.Store
	cache       ContextCache
	logger      *slog.Logger

	profileTTL    time.Duration
	reputationTTL time.Duration
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithCacheTTLs overrides the profile and reputation cache TTLs.
// Non-positive values keep the defaults.
func WithCacheTTLs(profileTTL, reputationTTL time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if profileTTL > 0 {
			a.profileTTL = profileTTL
		}
		if reputationTTL > 0 {
			a.reputationTTL = reputationTTL
		}
	}
}

// NewAggregator creates a context aggregator. cache may be nil.
func NewAggregator(profiles profile.Store, txns history.Store, reputations reputation.Store, cache ContextCache, logger *slog.Logger, opts ...AggregatorOption) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		profiles:      profiles,
		txns:          txns,
		reputations:   reputations,
		cache:         cache,
		logger:        logger,
		profileTTL:    defaultProfileCacheTTL,
		reputationTTL: defaultReputationCacheTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build assembles the context for one evaluation as of now. It returns
// ErrUserNotFound when the user id is unknown; any other store failure is
// logged and absorbed with neutral defaults.
func (a *Aggregator) Build(ctx context.Context, userID, payee string, now time.Time) (*UserContext, error) {
	snap, err := a.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	uc := &UserContext{
		Profile:     *snap,
		EvaluatedAt: now,
	}
	if !snap.CreatedAt.IsZero() && now.After(snap.CreatedAt) {
		uc.Stats.TenureDays = int(now.Sub(snap.CreatedAt).Hours() / 24)
	}

	stats, err := a.txns.Stats(ctx, userID, now)
	if err != nil {
		// Conservative defaults: zero counts, no-history sentinel.
		a.logger.Warn("transaction stats unavailable, using defaults",
			"userId", userID, "error", err)
		uc.Stats.Stats = history.Stats{DaysSinceLastTxn: history.DaysSinceLastSentinel}
	} else {
		uc.Stats.Stats = *stats
	}

	uc.Payee = a.loadReputation(ctx, payee)

	if payee != "" {
		count, err := a.txns.CountCompletedToPayee(ctx, userID, payee)
		if err != nil {
			a.logger.Warn("payee history lookup failed", "userId", userID, "error", err)
			uc.Payee.FirstTimeForUser = true
		} else {
			uc.Payee.FirstTimeForUser = count == 0
		}
	}

	return uc, nil
}

func (a *Aggregator) loadProfile(ctx context.Context, userID string) (*ProfileSnapshot, error) {
	key := "profile:" + userID
	if a.cache != nil {
		if v, ok := a.cache.Get(key); ok {
			if snap, ok := v.(*ProfileSnapshot); ok {
				return snap, nil
			}
		}
	}

	p, err := a.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	snap := &ProfileSnapshot{
		UserID:       p.UserID,
		TrustScore:   p.TrustScore,
		RiskTier:     p.RiskTier,
		KnownDevices: p.KnownDevices,
		CreatedAt:    p.CreatedAt,
	}
	if a.cache != nil {
		a.cache.Set(key, snap, a.profileTTL)
	}
	return snap, nil
}

// loadReputation never fails: an absent or unreadable record yields the
// neutral reputation.
func (a *Aggregator) loadReputation(ctx context.Context, payee string) PayeeReputation {
	neutral := PayeeReputation{Payee: payee, IsNew: true, ReputationScore: 0.5}
	if payee == "" {
		return neutral
	}

	key := "reputation:" + payee
	if a.cache != nil {
		if v, ok := a.cache.Get(key); ok {
			if rep, ok := v.(PayeeReputation); ok {
				return rep
			}
		}
	}

	rec, err := a.reputations.GetByPayee(ctx, payee)
	if errors.Is(err, reputation.ErrNotFound) {
		if a.cache != nil {
			a.cache.Set(key, neutral, a.reputationTTL)
		}
		return neutral
	}
	if err != nil {
		a.logger.Warn("reputation lookup failed, using neutral", "payee", payee, "error", err)
		return neutral
	}

	ratio := rec.FraudRatio()
	rep := PayeeReputation{
		Payee:             payee,
		TotalTransactions: rec.TotalTransactions,
		FraudCount:        rec.FraudCount,
		FraudRatio:        ratio,
		ReputationScore:   ratio,
		GoodHistory:       rec.TotalTransactions >= reputation.MinSampleSize && ratio < 0.05,
		RiskyHistory:      ratio > 0.5 && rec.TotalTransactions >= 5,
	}
	if a.cache != nil {
		a.cache.Set(key, rep, a.reputationTTL)
	}
	return rep
}
