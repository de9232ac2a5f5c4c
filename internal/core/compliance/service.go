package compliance

import (
	"context"
	"fmt"

	"github.com/solatis/medaudit/internal/core/db"
	"github.com/solatis/medaudit/internal/core/store"
	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/rulecache"
	"github.com/solatis/medaudit/internal/scoring"
	"github.com/solatis/medaudit/internal/types"
	"github.com/solatis/medaudit/internal/validators"
	"github.com/solatis/medaudit/internal/versioning"
)

// Options configures New.
type Options struct {
	Cache      rulecache.Config
	Validators *validators.Registry
	// Notifier receives created versions. Nil disables publishing.
	Notifier versioning.Notifier
}

// Service is the assembled compliance core.
type Service struct {
	Rules   *RuleManager
	Scorer  *Scorer
	Tracker *versioning.Tracker
	Cache   *rulecache.Cache
}

// New assembles the core over q and initializes the version tracker, which
// creates version 1 on an empty database.
func New(ctx context.Context, q *db.Queries, opts Options, log logger.Logger) (*Service, *types.RuleVersion, error) {
	if log == nil {
		log = logger.Nop()
	}
	reg := opts.Validators
	if reg == nil {
		reg = validators.Default()
	}

	ruleStore := store.NewRuleStore(q)
	cache := rulecache.New(ruleStore, opts.Cache, rulecache.WithLogger(log.With("component", "rulecache")))

	trackerOpts := []versioning.Option{versioning.WithLogger(log.With("component", "versioning"))}
	if opts.Notifier != nil {
		trackerOpts = append(trackerOpts, versioning.WithNotifier(opts.Notifier))
	}
	tracker := versioning.NewTracker(store.NewVersionStore(q), ruleStore, trackerOpts...)

	current, err := tracker.Initialize(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize rule versions: %w", err)
	}

	engine := scoring.NewEngine(reg, log.With("component", "scoring"))

	return &Service{
		Rules:   NewRuleManager(ruleStore, cache, tracker, reg, log.With("component", "rules")),
		Scorer:  NewScorer(cache, tracker, engine),
		Tracker: tracker,
		Cache:   cache,
	}, current, nil
}
