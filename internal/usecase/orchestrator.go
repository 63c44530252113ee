package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/metrics"
	"EditaisScanner/internal/ports"
	"EditaisScanner/internal/scanner"
)

const (
	defaultConcurrency = 4
	defaultBudget      = 10 * time.Minute
	digestItems        = 15
)

// OrchestratorDeps wires all driven adapters into the acquisition run.
type OrchestratorDeps struct {
	Registry *scanner.Registry
	Resolver *Resolver
	Filters  ports.FilterRepository
	Events   ports.EventPublisher
	Notifier ports.Notifier
	Logger   *slog.Logger

	Location    *time.Location
	Concurrency int
	TimeBudget  time.Duration
	MaxPages    int
	SummaryMax  int
	DefaultDays int
}

// Orchestrator implements the acquisition workflow across every enabled source.
type Orchestrator struct {
	registry   *scanner.Registry
	resolver   *Resolver
	filters    ports.FilterRepository
	events     ports.EventPublisher
	notifier   ports.Notifier
	prospector Prospector
	logger     *slog.Logger

	location    *time.Location
	concurrency int
	budget      time.Duration
	maxPages    int
	summaryMax  int
	defaultDays int
	now         func() time.Time
}

var _ ports.Trigger = (*Orchestrator)(nil)

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		registry:    deps.Registry,
		resolver:    deps.Resolver,
		filters:     deps.Filters,
		events:      deps.Events,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		location:    deps.Location,
		concurrency: deps.Concurrency,
		budget:      deps.TimeBudget,
		maxPages:    deps.MaxPages,
		summaryMax:  deps.SummaryMax,
		defaultDays: deps.DefaultDays,
		now:         time.Now,
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.location == nil {
		o.location = time.UTC
	}
	if o.concurrency <= 0 {
		o.concurrency = defaultConcurrency
	}
	if o.budget <= 0 {
		o.budget = defaultBudget
	}
	if o.registry == nil {
		o.registry = scanner.NewRegistry()
	}
	return o
}

// run is the mutable state of one Run call.
type run struct {
	req      domain.RunRequest
	window   domain.Window
	deadline time.Time
	maxPages int
	filters  []domain.ProspectionFilter
	cancel   context.CancelFunc

	mu       sync.Mutex
	report   *domain.RunReport
	captured []domain.Notice
	abort    error
}

func (r *run) fail(f domain.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Fail(f)
}

func (r *run) truncate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Truncated = true
}

func (r *run) aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.abort != nil
}

func (r *run) abortWith(err error) {
	r.mu.Lock()
	if r.abort == nil {
		r.abort = err
	}
	r.mu.Unlock()
	r.cancel()
}

// Run executes one acquisition and returns its report. A store outage aborts
// the run; every other failure is contained in the report.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest) (domain.RunReport, error) {
	started := o.now()
	window, err := ResolveWindow(req, started, o.location, o.defaultDays)
	if err != nil {
		return domain.RunReport{}, err
	}

	sources, err := o.selectSources(req.Sources)
	if err != nil {
		return domain.RunReport{}, err
	}

	filters, err := o.loadFilters(ctx, req.FilterIDs)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return domain.RunReport{}, fmt.Errorf("load filters: %w", err)
	}

	budget := o.budget
	if req.TimeBudget > 0 {
		budget = req.TimeBudget
	}
	maxPages := o.maxPages
	if req.MaxPages > 0 {
		maxPages = req.MaxPages
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &run{
		req:      req,
		window:   window,
		deadline: time.Now().Add(budget),
		maxPages: maxPages,
		filters:  filters,
		cancel:   cancel,
		report:   domain.NewRunReport(window, started),
	}
	logger := o.logger.With("run_id", st.report.RunID)
	logger.Info("run started",
		"window_start", window.Start.Format(time.DateOnly),
		"window_end", window.End.Format(time.DateOnly),
		"sources", len(sources),
		"filters", len(filters),
		"budget", budget,
	)

	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	for _, s := range sources {
		wg.Add(1)
		go func(s scanner.Scanner) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			defer func() { <-sem }()
			o.runSource(runCtx, st, s, logger.With("source", s.Name()))
		}(s)
	}
	wg.Wait()

	report := *st.report
	report.FinishedAt = o.now()
	metrics.RunDuration.Observe(report.FinishedAt.Sub(started).Seconds())

	if st.abort != nil {
		metrics.RunsTotal.WithLabelValues("aborted").Inc()
		logger.Error("run aborted", "error", st.abort)
		return report, fmt.Errorf("run %s aborted: %w", report.RunID, st.abort)
	}
	if err := ctx.Err(); err != nil {
		metrics.RunsTotal.WithLabelValues("canceled").Inc()
		return report, err
	}

	metrics.RunsTotal.WithLabelValues("completed").Inc()
	logger.Info("run finished",
		"found", report.Total.Found,
		"new", report.Total.New,
		"duplicate", report.Total.Duplicate,
		"filtered", report.Total.Filtered,
		"errors", report.Total.Errors,
		"failures", len(report.Failures),
		"truncated", report.Truncated,
	)

	if o.notifier != nil && report.Total.New > 0 {
		if err := o.notifier.PublishDigest(ctx, buildDigestMessage(report, st.captured)); err != nil {
			logger.Warn("digest not delivered", "error", err)
		}
	}
	return report, nil
}

func (o *Orchestrator) selectSources(names []string) ([]scanner.Scanner, error) {
	if len(names) == 0 {
		names = o.registry.Names()
	}
	out := make([]scanner.Scanner, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		s, err := o.registry.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (o *Orchestrator) loadFilters(ctx context.Context, ids []uuid.UUID) ([]domain.ProspectionFilter, error) {
	if o.filters == nil {
		return nil, nil
	}
	if len(ids) > 0 {
		return o.filters.FiltersByIDs(ctx, ids)
	}
	return o.filters.ActiveFilters(ctx)
}

// runSource walks every region/category combination of one source in order.
func (o *Orchestrator) runSource(ctx context.Context, st *run, s scanner.Scanner, logger *slog.Logger) {
	if !time.Now().Before(st.deadline) {
		logger.Warn("time budget exhausted before source started")
		st.truncate()
		return
	}
	if err := s.Authenticate(ctx); err != nil {
		kind := domain.KindOf(err)
		logger.Warn("source skipped", "error", err, "kind", kind)
		st.mu.Lock()
		st.report.Record(s.Name(), "", domain.Counts{Errors: 1})
		st.report.Fail(domain.Failure{Source: s.Name(), Kind: kind, Message: err.Error()})
		st.mu.Unlock()
		return
	}

	caps := s.Capabilities()
	regions := axis(caps.PerRegion, st.req.Regions, caps.DefaultRegions)
	categories := axis(caps.PerCategory, st.req.Categories, caps.DefaultCategories)

	for _, region := range regions {
		for _, category := range categories {
			if st.aborted() || ctx.Err() != nil {
				return
			}
			if !time.Now().Before(st.deadline) {
				logger.Warn("time budget exhausted, remaining combinations skipped")
				st.truncate()
				return
			}

			q := scanner.Query{Window: st.window, Region: region, Category: category}
			err := o.runCombination(ctx, st, s, q, !caps.PerRegion, logger)
			if err == nil {
				continue
			}
			if errors.Is(err, domain.ErrAuthentication) || errors.Is(err, domain.ErrChallenge) {
				logger.Warn("authentication lost, remaining combinations skipped", "error", err)
				return
			}
		}
	}
}

// runCombination fetches, normalizes, filters and resolves one query.
// The returned error is the fetch failure, already recorded in the report.
func (o *Orchestrator) runCombination(ctx context.Context, st *run, s scanner.Scanner, q scanner.Query, scopeRegions bool, logger *slog.Logger) error {
	res := s.FetchAll(ctx, q, scanner.FetchOptions{MaxPages: st.maxPages, Deadline: st.deadline})
	if res.Truncated {
		st.truncate()
	}

	pc := scanner.PlatformContext{
		Query:      q,
		Location:   o.location,
		SummaryMax: o.summaryMax,
		Logger:     logger,
		Now:        o.now(),
	}

	tally := map[string]*domain.Counts{}
	bump := func(region string) *domain.Counts {
		if q.Region != "" {
			region = q.Region
		}
		if _, ok := tally[region]; !ok {
			tally[region] = &domain.Counts{}
		}
		return tally[region]
	}
	var rejections []string

	for _, raw := range res.Records {
		if st.aborted() {
			break
		}

		n, err := s.Normalize(raw, pc)
		if err != nil {
			logger.Debug("record not normalized", "error", err)
			c := bump("")
			c.Found++
			c.Errors++
			metrics.NoticesTotal.WithLabelValues(s.Name(), string(domain.OutcomeError)).Inc()
			continue
		}
		c := bump(n.RegionCode)
		c.Found++

		if scopeRegions && !inScope(n.RegionCode, st.req.Regions) {
			c.Filtered++
			rejections = append(rejections, domain.RejectRegion)
			metrics.NoticesTotal.WithLabelValues(s.Name(), string(domain.OutcomeFiltered)).Inc()
			continue
		}
		if ok, reason := o.prospector.Evaluate(n, st.filters); !ok {
			c.Filtered++
			rejections = append(rejections, reason)
			metrics.NoticesTotal.WithLabelValues(s.Name(), string(domain.OutcomeFiltered)).Inc()
			continue
		}

		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		outcome, err := o.resolver.Resolve(ctx, n)
		metrics.NoticesTotal.WithLabelValues(s.Name(), string(outcome)).Inc()
		switch {
		case errors.Is(err, domain.ErrStoreUnavailable):
			c.Errors++
			st.abortWith(err)
		case err != nil:
			c.Errors++
			logger.Warn("notice not resolved", "identity_hash", n.IdentityHash, "error", err)
		case outcome == domain.OutcomeDuplicate:
			c.Duplicate++
		case outcome == domain.OutcomeNew:
			c.New++
			o.onCaptured(ctx, st, n, logger)
		}
	}

	failed := res.Err != nil && !(errors.Is(res.Err, context.Canceled) && st.aborted())
	if failed {
		bump("").Errors++
	}

	st.mu.Lock()
	for region, c := range tally {
		st.report.Record(s.Name(), region, *c)
	}
	if len(tally) == 0 {
		st.report.Record(s.Name(), q.Region, domain.Counts{})
	}
	for _, reason := range rejections {
		st.report.Reject(reason)
	}
	st.mu.Unlock()

	if res.Err == nil {
		return nil
	}
	if !failed {
		return res.Err
	}
	logger.Warn("combination failed",
		"region", q.Region, "category", q.Category,
		"pages", res.Pages, "kept", len(res.Records), "error", res.Err)
	st.fail(domain.Failure{
		Source:   s.Name(),
		Region:   q.Region,
		Category: q.Category,
		Kind:     domain.KindOf(res.Err),
		Message:  res.Err.Error(),
	})
	return res.Err
}

func (o *Orchestrator) onCaptured(ctx context.Context, st *run, n domain.Notice, logger *slog.Logger) {
	st.mu.Lock()
	if len(st.captured) < digestItems {
		st.captured = append(st.captured, n)
	}
	st.mu.Unlock()

	if o.events == nil {
		return
	}
	if err := o.events.PublishCaptured(ctx, n); err != nil {
		logger.Warn("capture event not published", "identity_hash", n.IdentityHash, "error", err)
	}
}

// axis returns the values to iterate, or a single "all" entry when the source
// does not filter on this axis.
func axis(iterate bool, requested, defaults []string) []string {
	if !iterate {
		return []string{""}
	}
	if len(requested) > 0 {
		return requested
	}
	if len(defaults) > 0 {
		return defaults
	}
	return []string{""}
}

// inScope keeps notices of an unknown region and those inside the requested set.
func inScope(region string, requested []string) bool {
	if len(requested) == 0 || region == "" {
		return true
	}
	for _, r := range requested {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

func buildDigestMessage(report domain.RunReport, notices []domain.Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Captação %s a %s*\n",
		report.Window.Start.Format("02/01/2006"), report.Window.End.Format("02/01/2006"))
	fmt.Fprintf(&b, "Encontrados: %d | Novos: %d | Duplicados: %d | Filtrados: %d | Erros: %d\n",
		report.Total.Found, report.Total.New, report.Total.Duplicate, report.Total.Filtered, report.Total.Errors)
	if report.Truncated {
		b.WriteString("_Execução interrompida pelo limite de tempo_\n")
	}
	b.WriteString("\n")

	for _, n := range notices {
		fmt.Fprintf(&b, "- %s", n.ObjectSummary)
		if n.Municipality != "" || n.RegionCode != "" {
			fmt.Fprintf(&b, " (%s/%s)", n.Municipality, n.RegionCode)
		}
		b.WriteString("\n")
		if n.EstimatedValue != nil {
			fmt.Fprintf(&b, "Valor: R$ %.2f\n", *n.EstimatedValue)
		}
		if n.OriginURL != "" {
			fmt.Fprintf(&b, "%s\n", n.OriginURL)
		}
		b.WriteString("\n")
	}
	if extra := report.Total.New - len(notices); extra > 0 {
		fmt.Fprintf(&b, "... e mais %d\n", extra)
	}
	return b.String()
}
