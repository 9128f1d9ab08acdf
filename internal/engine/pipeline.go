// Package engine is the research engine: plan, search, read, synthesize.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/logger"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/provider"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch"
	"github.com/mohammad-safakhou/researcher/tools/web_search"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/utils"
	"golang.org/x/sync/errgroup"
)

const (
	maxSources   = 10
	fetchWorkers = 4
)

var (
	ErrInvalidPlan = errors.New("invalid research plan")
	ErrNoResults   = errors.New("web search returned nothing usable")
	ErrNoMaterial  = errors.New("no source could be read")
)

// Plan is the output of the planning stage.
type Plan struct {
	Topic         string   `json:"topic"`
	SearchQueries []string `json:"search_queries"`
	FocusAreas    []string `json:"focus_areas"`
}

// Validate drops blank and duplicate queries and caps them at maxQueries.
func (p *Plan) Validate(maxQueries int) error {
	seen := map[string]bool{}
	var queries []string
	for _, q := range p.SearchQueries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return fmt.Errorf("%w: no search queries", ErrInvalidPlan)
	}
	if maxQueries > 0 && len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	p.SearchQueries = queries
	return nil
}

// Note is what the read stage learned from one source.
type Note struct {
	URL     string
	Title   string
	Summary string
}

type extraction struct {
	Summary string `json:"summary"`
	Facts   []struct {
		Fact   string `json:"fact"`
		Source string `json:"source"`
	} `json:"facts"`
}

type draft struct {
	Title   string   `json:"title"`
	Outline []string `json:"outline"`
	Report  string   `json:"report"`
	Sources []string `json:"sources"`
}

// Pipeline implements research.Engine.
type Pipeline struct {
	LLM             provider.Provider
	Search          web_search.WebSearcher
	Fetch           web_fetch.WebFetcher
	Policy          config.CrawlPolicyConfig
	ResultsPerQuery int
	MaxQueries      int
	Log             *logger.Logger
}

var _ research.Engine = (*Pipeline)(nil)

func (p *Pipeline) Run(ctx context.Context, topic string, sink research.FactSink) (*research.Report, error) {
	log := p.Log
	if log == nil {
		log = logger.NewNop()
	}

	plan, err := p.plan(ctx, topic)
	if err != nil {
		return nil, err
	}
	log.Info("plan ready", "queries", len(plan.SearchQueries), "focus_areas", len(plan.FocusAreas))

	results, err := p.search(ctx, log, plan.SearchQueries)
	if err != nil {
		return nil, err
	}
	log.Info("search done", "sources", len(results))

	notes, err := p.read(ctx, log, topic, results, sink)
	if err != nil {
		return nil, err
	}
	log.Info("reading done", "notes", len(notes))

	return p.synthesize(ctx, topic, plan, notes)
}

func (p *Pipeline) plan(ctx context.Context, topic string) (Plan, error) {
	var plan Plan
	if err := p.LLM.ChatJSON(ctx, planSystem, "Research topic: "+topic, &plan); err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}
	if err := plan.Validate(p.MaxQueries); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// search runs every query in parallel. Failed queries are logged and skipped;
// only a total failure aborts.
func (p *Pipeline) search(ctx context.Context, log *logger.Logger, queries []string) ([]models.Result, error) {
	k := p.ResultsPerQuery
	if k <= 0 {
		k = 4
	}
	perQuery := make([][]models.Result, len(queries))
	errs := make([]error, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			res, err := p.Search.Discover(gctx, q, k)
			if err != nil {
				log.Warn("search query failed", "query", q, "error", err)
				errs[i] = err
				return nil
			}
			perQuery[i] = res
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(queries) {
		return nil, fmt.Errorf("%w: all %d queries failed: %w", ErrNoResults, failed, errors.Join(errs...))
	}

	// interleave so every query contributes its best hits first
	seen := map[string]bool{}
	var out []models.Result
	for rank := 0; rank < k && len(out) < maxSources; rank++ {
		for _, res := range perQuery {
			if rank >= len(res) || len(out) >= maxSources {
				continue
			}
			r := res[rank]
			key := helpers.SourceKey(r.URL)
			if r.URL == "" || seen[key] || !p.Policy.Permits(r.URL) {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}

// read fetches each source, extracts facts and hands them to sink as soon as
// they are known. Pages that cannot be fetched fall back to the search snippet.
func (p *Pipeline) read(ctx context.Context, log *logger.Logger, topic string, results []models.Result, sink research.FactSink) ([]Note, error) {
	notes := make([]*Note, len(results))
	var sinkMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, r := range results {
		i, r := i, r
		g.Go(func() error {
			text := p.pageText(gctx, log, r)
			if strings.TrimSpace(text) == "" {
				return nil
			}
			var ex extraction
			user := fmt.Sprintf("Research topic: %s\nPage URL: %s\nPage title: %s\n\nPage text:\n%s", topic, r.URL, r.Title, text)
			if err := p.LLM.ChatJSON(gctx, extractSystem, user, &ex); err != nil {
				log.Warn("fact extraction failed", "url", r.URL, "error", err)
				return nil
			}
			sinkMu.Lock()
			defer sinkMu.Unlock()
			for _, f := range ex.Facts {
				if strings.TrimSpace(f.Fact) == "" {
					continue
				}
				source := strings.TrimSpace(f.Source)
				if source == "" {
					source = r.URL
				}
				if err := sink.Record(gctx, f.Fact, source); err != nil {
					return fmt.Errorf("record fact: %w", err)
				}
			}
			if s := strings.TrimSpace(ex.Summary); s != "" {
				notes[i] = &Note{URL: r.URL, Title: r.Title, Summary: s}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []Note
	for _, n := range notes {
		if n != nil {
			out = append(out, *n)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMaterial
	}
	return out, nil
}

func (p *Pipeline) pageText(ctx context.Context, log *logger.Logger, r models.Result) string {
	if p.Fetch == nil || p.Policy.Paywalled(r.URL) {
		return r.Snippet
	}
	page, err := p.Fetch.Exec(ctx, r.URL)
	if err != nil || strings.TrimSpace(page.Text) == "" {
		log.Debug("page fetch failed, using snippet", "url", r.URL, "error", err)
		return r.Snippet
	}
	return page.Text
}

func (p *Pipeline) synthesize(ctx context.Context, topic string, plan Plan, notes []Note) (*research.Report, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Research query: %s\n\nFocus areas: %s\n\nNotes:\n", topic, strings.Join(plan.FocusAreas, "; "))
	for i, n := range notes {
		fmt.Fprintf(&b, "\n[%d] %s, %s (%s)\n%s\n", i+1, n.Title, p.Policy.Attribute(n.URL), n.URL, n.Summary)
	}

	var d draft
	if err := p.LLM.ChatJSON(ctx, synthesizeSystem, b.String(), &d); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	sources := cleanList(d.Sources)
	if len(sources) == 0 {
		for _, n := range notes {
			sources = append(sources, n.URL)
		}
	}
	rep := &research.Report{
		Title:     strings.TrimSpace(d.Title),
		Outline:   cleanList(d.Outline),
		Body:      strings.TrimSpace(d.Report),
		Sources:   sources,
		WordCount: utils.CountWords(d.Report),
	}
	if err := rep.Validate(); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return rep, nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
