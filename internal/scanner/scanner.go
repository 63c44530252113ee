package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"EditaisScanner/internal/domain"
)

// RawRecord is an opaque platform payload; only the owning normalizer reads its keys.
type RawRecord map[string]any

// Query narrows a fetch to one window/region/category combination.
// Empty Region or Category means "all" for sources that filter server-side.
type Query struct {
	Window   domain.Window
	Region   string
	Category string
}

// RawPage is one page of raw records plus a continuation signal.
type RawPage struct {
	Records []RawRecord
	Total   int
	HasMore bool
	// NextOffset overrides offset+len(Records) when the source reports its own cursor.
	NextOffset int
}

// FetchOptions bounds a FetchAll call.
type FetchOptions struct {
	MaxPages int
	Deadline time.Time
}

// FetchResult carries what was collected even when paging stopped on an error.
type FetchResult struct {
	Records   []RawRecord
	Pages     int
	Truncated bool
	Stopped   bool
	Err       error
}

// PlatformContext travels with a raw record into its normalizer.
type PlatformContext struct {
	Query      Query
	Location   *time.Location
	SummaryMax int
	Logger     *slog.Logger
	Now        time.Time
}

// Capabilities tells the orchestrator which axes a source must iterate itself.
type Capabilities struct {
	PerRegion         bool
	PerCategory       bool
	DefaultRegions    []string
	DefaultCategories []string
}

// Scanner is a single platform strategy (PNCP, BBMNET, ...).
type Scanner interface {
	Name() string
	Platform() string
	Capabilities() Capabilities
	Authenticate(ctx context.Context) error
	FetchPage(ctx context.Context, q Query, offset, limit int) (RawPage, error)
	FetchAll(ctx context.Context, q Query, opts FetchOptions) FetchResult
	Normalize(raw RawRecord, pc PlatformContext) (domain.Notice, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered scanners in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
