package explore

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore/trace"
)

const tracerName = "arte/explore"

// ExplorerConfig wires the collaborators of an Explorer.
type ExplorerConfig struct {
	Catalog *Catalog
	Reward  *RewardModel
	// Policy defaults to EpsilonGreedy with DefaultEpsilon.
	Policy Policy
	Store  *ArtifactStore
	// Script, when non-empty, is forced at the start of every episode
	// before the configured policy takes over.
	Script []ActionInstance

	// Optional.
	Metrics *Metrics
	Trace   *trace.SessionTrace
}

// Explorer runs episodes against targets, recording anomalous ones.
type Explorer struct {
	session string
	catalog *Catalog
	reward  *RewardModel
	policy  Policy
	store   *ArtifactStore
	script  []ActionInstance
	stats   *PolicyStats
	metrics *Metrics
	trace   *trace.SessionTrace
	tracer  oteltrace.Tracer
}

// NewExplorer validates cfg and starts a session with empty statistics.
func NewExplorer(cfg ExplorerConfig) (*Explorer, error) {
	if cfg.Catalog == nil {
		return nil, ErrEmptyCatalog
	}
	if cfg.Reward == nil {
		return nil, fmt.Errorf("explorer needs a reward model")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("explorer needs an artifact store")
	}
	policy := cfg.Policy
	if policy == nil {
		p, err := NewEpsilonGreedy(DefaultEpsilon)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	return &Explorer{
		session: uuid.NewString(),
		catalog: cfg.Catalog,
		reward:  cfg.Reward,
		policy:  policy,
		store:   cfg.Store,
		script:  cfg.Script,
		stats:   NewPolicyStats(cfg.Catalog),
		metrics: cfg.Metrics,
		trace:   cfg.Trace,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Session returns the session identifier used in logs and spans.
func (e *Explorer) Session() string { return e.session }

// Stats returns the session's policy statistics.
func (e *Explorer) Stats() *PolicyStats { return e.stats }

// RunEpisode resets target and executes steps actions chosen by the policy.
// Randomness comes only from seed. When ctx is cancelled the step in flight
// completes normally and the episode ends; whatever was persisted is whole.
//
// A non-nil error means an anomalous episode could not be written. The
// returned episode is complete regardless.
func (e *Explorer) RunEpisode(ctx context.Context, target Target, seed int64, steps int) (*Episode, error) {
	if steps < 0 {
		return nil, fmt.Errorf("steps must be >= 0, got %d", steps)
	}
	rng := NewEpisodeRNG(seed)
	ep := NewEpisode(seed, target.BaseURL(), time.Now())
	archive := NewNoveltyArchive()
	rec := NewRecorder(e.store, ep)
	policy := e.policy
	if len(e.script) > 0 {
		policy = &chainedPolicy{script: NewScriptedPolicy(e.script), next: e.policy}
	}

	log := logrus.WithFields(logrus.Fields{
		"session": e.session,
		"seed":    seed,
		"target":  target.BaseURL(),
	})
	ctx, span := e.tracer.Start(ctx, "arte.episode",
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("session", e.session),
			attribute.Int64("seed", seed),
			attribute.String("target", target.BaseURL()),
			attribute.Int("steps", steps),
		),
	)
	defer span.End()

	// Requests run detached from cancellation so an interrupt lets the step
	// in flight finish; the adapter's per-call timeout still bounds them.
	reqCtx := context.WithoutCancel(ctx)

	resetObs := target.Reset(reqCtx)
	archive.Update(resetObs)
	e.observe(log, ResetAction().Name, 0)
	log.Debugf("reset status=%d state=%s", resetObs.StatusCode, resetObs.State.Source)

	var persistErr error
	for i := 0; i < steps; i++ {
		if ctx.Err() != nil {
			log.Infof("stopping after %d steps: %v", i, ctx.Err())
			break
		}
		action, decision := policy.Select(e.catalog, e.stats, rng)
		step := e.runStep(reqCtx, target, archive, i, action)
		e.observe(log, action.Name, step.Reward)

		decision.Seed = seed
		decision.Step = i
		e.trace.RecordDecision(decision)
		e.metrics.observeStep(step, string(decision.Mode))

		log.Debugf("step=%d action=%s status=%d reward=%.2f markers=%v",
			i, action.Name, step.Obs.StatusCode, step.Reward, step.Obs.Markers)

		saved, err := rec.Append(step)
		if err != nil {
			log.Warnf("persisting episode at step %d: %v", i, err)
			persistErr = err
		} else if saved {
			e.metrics.observeArtifact()
		}
	}

	saved, err := rec.Finalize()
	if err != nil {
		log.Warnf("persisting episode: %v", err)
		persistErr = err
	} else if saved {
		e.metrics.observeArtifact()
	}
	ep.ArtifactPath = rec.LastPath()

	anomalies := len(ep.Anomalies())
	e.metrics.observeEpisode(anomalies > 0)
	span.SetAttributes(
		attribute.Int("anomalous_steps", anomalies),
		attribute.Float64("total_reward", ep.TotalReward()),
	)
	if anomalies > 0 {
		log.Infof("episode finished: %d steps, %d anomalous, saved to %s", len(ep.Steps), anomalies, ep.ArtifactPath)
	} else {
		log.Infof("episode finished: %d steps, no anomalies", len(ep.Steps))
	}

	if persistErr != nil {
		span.RecordError(persistErr)
		span.SetStatus(codes.Error, "artifact write failed")
		return ep, fmt.Errorf("episode seed %d: %w", seed, persistErr)
	}
	return ep, nil
}

func (e *Explorer) runStep(ctx context.Context, target Target, archive *NoveltyArchive, idx int, action ActionInstance) EpisodeStep {
	ctx, span := e.tracer.Start(ctx, "arte.step", oteltrace.WithAttributes(
		attribute.Int("step", idx),
		attribute.String("action", action.Name),
		attribute.String("http.method", action.Method),
		attribute.String("http.path", action.Path),
	))
	defer span.End()

	obs := target.Perform(ctx, action)
	novelty := Novelty{
		NewState:   archive.IsNewState(obs),
		NewAnomaly: archive.IsNewAnomaly(obs),
	}
	reward := e.reward.Score(obs, archive)
	archive.Update(obs)

	span.SetAttributes(
		attribute.Int("http.status_code", obs.StatusCode),
		attribute.StringSlice("markers", obs.Markers),
		attribute.Float64("reward", reward),
	)
	return EpisodeStep{
		Step:    idx,
		Action:  action,
		Obs:     obs,
		Reward:  reward,
		Novelty: novelty,
	}
}

// observe folds reward into the statistics. Names outside the catalog (a
// scripted action, or reset when the catalog has none) carry no statistic.
func (e *Explorer) observe(log *logrus.Entry, name string, reward float64) {
	if err := e.stats.Observe(name, reward); err != nil {
		if errors.Is(err, ErrUnknownAction) {
			log.Debugf("no statistic for %q", name)
			return
		}
		log.Warnf("observing %q: %v", name, err)
	}
}

// chainedPolicy serves a script first, then hands over to the next policy.
type chainedPolicy struct {
	script *ScriptedPolicy
	next   Policy
}

func (p *chainedPolicy) Select(cat *Catalog, stats *PolicyStats, rng *rand.Rand) (ActionInstance, trace.DecisionRecord) {
	if p.script.Remaining() > 0 {
		return p.script.Select(cat, stats, rng)
	}
	return p.next.Select(cat, stats, rng)
}

// RunConfig sizes a run.
type RunConfig struct {
	Episodes int
	Steps    int
	Seed     int64
}

// RunSummary collects the outcome of Run.
type RunSummary struct {
	Session string
	// Episodes is indexed by episode number; entries are nil for episodes
	// that never started.
	Episodes  []*Episode
	Artifacts []string
	Anomalous int
	Stats     map[string]ActionStat
}

// Run executes cfg.Episodes episodes with seeds cfg.Seed+i. With one target
// they run in order. With several, each target gets one worker and the
// workers pull episode numbers from a shared queue; targets must be
// isolated instances. Statistics are shared by all workers.
func (e *Explorer) Run(ctx context.Context, targets []Target, cfg RunConfig) (*RunSummary, error) {
	if len(targets) == 0 {
		return nil, errors.New("run needs at least one target")
	}
	if cfg.Episodes < 0 || cfg.Steps < 0 {
		return nil, fmt.Errorf("episodes and steps must be >= 0, got %d and %d", cfg.Episodes, cfg.Steps)
	}
	key := NewSessionKey(cfg.Seed)
	episodes := make([]*Episode, cfg.Episodes)

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < cfg.Episodes; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for _, target := range targets {
		g.Go(func() error {
			for idx := range jobs {
				if gctx.Err() != nil {
					return nil
				}
				logrus.Debugf("episode %d on %s", idx, target.BaseURL())
				ep, err := e.RunEpisode(gctx, target, key.EpisodeSeed(idx), cfg.Steps)
				episodes[idx] = ep
				if err != nil {
					return fmt.Errorf("episode %d: %w", idx, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	summary := &RunSummary{
		Session:  e.session,
		Episodes: episodes,
		Stats:    e.stats.Snapshot(),
	}
	for _, ep := range episodes {
		if ep == nil {
			continue
		}
		if len(ep.Anomalies()) > 0 {
			summary.Anomalous++
		}
		if ep.ArtifactPath != "" {
			summary.Artifacts = append(summary.Artifacts, ep.ArtifactPath)
		}
	}
	if err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}
