// Package orchestrator implements CategoryOrchestrator: for each category,
// building the list of configured source jobs, running them through two
// nested bounded worker pools (source-level, then repo-level inside each
// job), flattening the results, deduplicating colliding release versions,
// and applying the final deterministic sort. Grounded on the teacher's
// RabbitMQ consumer loop (cli/consumer.go, StartConsuming/processMessage)
// for the "drain a list of work, isolate per-item failure, log and
// continue" shape, adapted from a long-lived message loop to a one-shot
// per-run fan-out.
package orchestrator

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/evalgo/digestengine/collect"
	"github.com/evalgo/digestengine/common"
	"github.com/evalgo/digestengine/config"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/worker"
)

type jobKind string

const (
	jobRelease  jobKind = "release"
	jobIssue    jobKind = "issue"
	jobAdvisory jobKind = "advisory"
	jobFeed     jobKind = "feed"
	jobRegistry jobKind = "registry"
)

type sourceJob struct {
	kind jobKind
	run  func(ctx context.Context, cutoff time.Time, repoConcurrency int) ([]model.Item, error)
}

// CategoryOrchestrator wires the five collectors together. Any collector
// left nil must correspond to a source kind no configured category ever
// populates: a job that invokes a nil collector panics, worker.Run recovers
// the panic, and that source is logged as failed and contributes no items.
type CategoryOrchestrator struct {
	releases   *collect.ReleaseCollector
	issues     *collect.IssueCollector
	advisories *collect.AdvisoryCollector
	feeds      *collect.FeedCollector
	registries *collect.RegistryCollector
	logger     *common.ContextLogger
}

// New constructs a CategoryOrchestrator over the given collectors.
func New(releases *collect.ReleaseCollector, issues *collect.IssueCollector, advisories *collect.AdvisoryCollector, feeds *collect.FeedCollector, registries *collect.RegistryCollector, logger *common.ContextLogger) *CategoryOrchestrator {
	if logger == nil {
		logger = common.NewContextLogger(nil, map[string]interface{}{"component": "orchestrator"})
	}
	return &CategoryOrchestrator{releases: releases, issues: issues, advisories: advisories, feeds: feeds, registries: registries, logger: logger}
}

// RunCategory executes every configured source job for cfg, flattens their
// results, deduplicates colliding release versions, and returns the
// deterministically sorted item list. An empty result is reported at info
// level, not as an error.
func (co *CategoryOrchestrator) RunCategory(ctx context.Context, cfg model.CategoryConfig, opts config.RuntimeOptions, cutoff time.Time) []model.Item {
	logger := co.logger.WithField("category", string(cfg.Name))
	defer common.LogDuration(logger, "run_category")()

	jobs := co.buildJobs(cfg)
	if len(jobs) == 0 {
		logger.Info("no data")
		return nil
	}

	collectConcurrency, repoConcurrency := 1, 1
	if opts.CollectParallel {
		collectConcurrency = opts.MaxCollectThreads
		repoConcurrency = opts.MaxRepoThreads
	}

	results, errs := worker.Run(ctx, collectConcurrency, jobs, func(ctx context.Context, _ int, job sourceJob) ([]model.Item, error) {
		return job.run(ctx, cutoff, repoConcurrency)
	}, co.logger)

	var flattened []model.Item
	for i, items := range results {
		if errs[i] != nil {
			logger.WithFields(map[string]interface{}{"job": string(jobs[i].kind), "error": errs[i].Error()}).Warn("source job failed, emitting empty list")
			continue
		}
		flattened = append(flattened, items...)
	}

	flattened = deduplicateReleaseVersions(flattened)
	sortItems(flattened)

	if len(flattened) == 0 {
		logger.Info("no data")
	}
	return flattened
}

func (co *CategoryOrchestrator) buildJobs(cfg model.CategoryConfig) []sourceJob {
	var jobs []sourceJob
	if len(cfg.Repos) > 0 {
		repos := cfg.Repos
		jobs = append(jobs,
			sourceJob{kind: jobRelease, run: func(ctx context.Context, cutoff time.Time, concurrency int) ([]model.Item, error) {
				return co.runReleaseJob(ctx, repos, cutoff, concurrency)
			}},
			sourceJob{kind: jobIssue, run: func(ctx context.Context, cutoff time.Time, concurrency int) ([]model.Item, error) {
				return co.runIssueJob(ctx, repos, cutoff, concurrency)
			}},
		)
	}
	if len(cfg.Advisories) > 0 {
		advisories := cfg.Advisories
		jobs = append(jobs, sourceJob{kind: jobAdvisory, run: func(ctx context.Context, cutoff time.Time, concurrency int) ([]model.Item, error) {
			return co.runAdvisoryJob(ctx, advisories, cutoff, concurrency)
		}})
	}
	if len(cfg.Feeds) > 0 {
		feeds := cfg.Feeds
		jobs = append(jobs, sourceJob{kind: jobFeed, run: func(ctx context.Context, cutoff time.Time, concurrency int) ([]model.Item, error) {
			return co.runFeedJob(ctx, feeds, cutoff, concurrency)
		}})
	}
	if len(cfg.Registries) > 0 {
		registries := cfg.Registries
		jobs = append(jobs, sourceJob{kind: jobRegistry, run: func(ctx context.Context, cutoff time.Time, concurrency int) ([]model.Item, error) {
			return co.runRegistryJob(ctx, registries, cutoff, concurrency)
		}})
	}
	return jobs
}

func (co *CategoryOrchestrator) runReleaseJob(ctx context.Context, repos []model.RepoRef, cutoff time.Time, concurrency int) ([]model.Item, error) {
	results, errs := worker.Run(ctx, concurrency, repos, func(ctx context.Context, _ int, repo model.RepoRef) (*model.Item, error) {
		return co.releases.Collect(ctx, repo, cutoff)
	}, co.logger)
	var items []model.Item
	for i, item := range results {
		if errs[i] != nil {
			co.logger.WithFields(map[string]interface{}{"repo": repos[i].FullName(), "error": errs[i].Error()}).Warn("release collection failed")
			continue
		}
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (co *CategoryOrchestrator) runIssueJob(ctx context.Context, repos []model.RepoRef, cutoff time.Time, concurrency int) ([]model.Item, error) {
	results, errs := worker.Run(ctx, concurrency, repos, func(ctx context.Context, _ int, repo model.RepoRef) ([]model.Item, error) {
		return co.issues.Collect(ctx, repo, cutoff)
	}, co.logger)
	var items []model.Item
	for i, batch := range results {
		if errs[i] != nil {
			co.logger.WithFields(map[string]interface{}{"repo": repos[i].FullName(), "error": errs[i].Error()}).Warn("issue collection failed")
			continue
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (co *CategoryOrchestrator) runAdvisoryJob(ctx context.Context, advisories []model.AdvisoryRef, cutoff time.Time, concurrency int) ([]model.Item, error) {
	results, errs := worker.Run(ctx, concurrency, advisories, func(ctx context.Context, _ int, adv model.AdvisoryRef) ([]model.Item, error) {
		return co.advisories.Collect(ctx, adv, cutoff)
	}, co.logger)
	var items []model.Item
	for i, batch := range results {
		if errs[i] != nil {
			co.logger.WithFields(map[string]interface{}{"ecosystem": advisories[i].Ecosystem, "error": errs[i].Error()}).Warn("advisory collection failed")
			continue
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (co *CategoryOrchestrator) runFeedJob(ctx context.Context, feeds []model.FeedRef, cutoff time.Time, concurrency int) ([]model.Item, error) {
	results, errs := worker.Run(ctx, concurrency, feeds, func(ctx context.Context, _ int, feed model.FeedRef) ([]model.Item, error) {
		return co.feeds.Collect(ctx, feed, cutoff)
	}, co.logger)
	var items []model.Item
	for i, batch := range results {
		if errs[i] != nil {
			co.logger.WithFields(map[string]interface{}{"feed": feeds[i].URL, "error": errs[i].Error()}).Warn("feed collection failed")
			continue
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (co *CategoryOrchestrator) runRegistryJob(ctx context.Context, registries []model.RegistryRef, cutoff time.Time, concurrency int) ([]model.Item, error) {
	results, errs := worker.Run(ctx, concurrency, registries, func(ctx context.Context, _ int, reg model.RegistryRef) ([]model.Item, error) {
		return co.registries.Collect(ctx, reg, cutoff)
	}, co.logger)
	var items []model.Item
	for i, batch := range results {
		if errs[i] != nil {
			co.logger.WithFields(map[string]interface{}{"package": registries[i].PackageName, "error": errs[i].Error()}).Warn("registry collection failed")
			continue
		}
		items = append(items, batch...)
	}
	return items, nil
}

// releaseTitleRe matches the "<name> v?<x.y.z[...]> released" title shape
// both the release-only and tags-only fallback paths of ReleaseCollector
// produce.
var releaseTitleRe = regexp.MustCompile(`^(.+) (v?\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.]+)?) released$`)

func releaseDedupeKey(item model.Item) (string, bool) {
	m := releaseTitleRe.FindStringSubmatch(item.Title)
	if m == nil {
		return "", false
	}
	return m[1] + "@" + m[2] + "@release", true
}

// sourceRank orders candidates within a dedupe bucket: a hosting-platform
// release link (a release page or a tag's tree URL, as ReleaseCollector
// builds them) outranks a package-registry link, which outranks anything
// else.
func sourceRank(item model.Item) int {
	switch {
	case strings.Contains(item.URL, "/releases/") || strings.Contains(item.URL, "/tree/"):
		return 2
	case strings.Contains(item.URL, "npmjs.com") || strings.Contains(item.URL, "pypi.org"):
		return 1
	default:
		return 0
	}
}

// deduplicateReleaseVersions groups items by (package, version, "release")
// derived from their titles and keeps, per bucket, the item maximizing
// (source-rank, body-length, published-at). Items whose titles don't match
// the release shape pass through untouched.
func deduplicateReleaseVersions(items []model.Item) []model.Item {
	buckets := make(map[string]model.Item)
	var order []string
	var passthrough []model.Item

	for _, it := range items {
		key, ok := releaseDedupeKey(it)
		if !ok {
			passthrough = append(passthrough, it)
			continue
		}
		existing, seen := buckets[key]
		if !seen {
			buckets[key] = it
			order = append(order, key)
			continue
		}
		if higherPriority(it, existing) {
			buckets[key] = it
		}
	}

	out := make([]model.Item, 0, len(passthrough)+len(order))
	out = append(out, passthrough...)
	for _, k := range order {
		out = append(out, buckets[k])
	}
	return out
}

func higherPriority(a, b model.Item) bool {
	if ra, rb := sourceRank(a), sourceRank(b); ra != rb {
		return ra > rb
	}
	if len(a.Body) != len(b.Body) {
		return len(a.Body) > len(b.Body)
	}
	return a.PublishedAt.After(b.PublishedAt)
}

// sortItems applies invariant 3's ordering: (-published-at, title,
// source-label, url).
func sortItems(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.URL < b.URL
	})
}
