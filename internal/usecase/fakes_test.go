package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/scanner"
)

type memoryRepository struct {
	mu       sync.Mutex
	byHash   map[string]domain.Notice
	byKey    map[string]bool
	stubs    map[uuid.UUID]domain.TriageStub
	failWith error
	filters  []domain.ProspectionFilter
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		byHash: map[string]domain.Notice{},
		byKey:  map[string]bool{},
		stubs:  map[uuid.UUID]domain.TriageStub{},
	}
}

func naturalKey(body, process, platform string) string {
	return platform + "|" + body + "|" + process
}

func (m *memoryRepository) ExistsByHash(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	_, ok := m.byHash[hash]
	return ok, nil
}

func (m *memoryRepository) ExistsByNaturalKey(_ context.Context, body, process, platform string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	return m.byKey[naturalKey(body, process, platform)], nil
}

func (m *memoryRepository) Insert(_ context.Context, n domain.Notice, stub domain.TriageStub) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return uuid.Nil, m.failWith
	}
	if _, ok := m.byHash[n.IdentityHash]; ok {
		return uuid.Nil, domain.ErrDuplicate
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	m.byHash[n.IdentityHash] = n
	if body, process, platform, ok := n.NaturalKey(); ok {
		m.byKey[naturalKey(body, process, platform)] = true
	}
	stub.NoticeID = n.ID
	m.stubs[n.ID] = stub
	return n.ID, nil
}

func (m *memoryRepository) ActiveFilters(context.Context) ([]domain.ProspectionFilter, error) {
	return m.filters, nil
}

func (m *memoryRepository) FiltersByIDs(_ context.Context, ids []uuid.UUID) ([]domain.ProspectionFilter, error) {
	var out []domain.ProspectionFilter
	for _, f := range m.filters {
		for _, id := range ids {
			if f.ID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (m *memoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// fakeScanner serves canned records per region.
type fakeScanner struct {
	name    string
	caps    scanner.Capabilities
	authErr error
	records map[string][]scanner.RawRecord
	errs    map[string]error
	delay   time.Duration

	mu        sync.Mutex
	queries   []scanner.Query
	authCalls int
}

func (f *fakeScanner) Name() string                       { return f.name }
func (f *fakeScanner) Platform() string                   { return f.name }
func (f *fakeScanner) Capabilities() scanner.Capabilities { return f.caps }

func (f *fakeScanner) Authenticate(context.Context) error {
	f.mu.Lock()
	f.authCalls++
	f.mu.Unlock()
	return f.authErr
}

func (f *fakeScanner) authenticated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls
}

func (f *fakeScanner) FetchPage(context.Context, scanner.Query, int, int) (scanner.RawPage, error) {
	return scanner.RawPage{}, nil
}

func (f *fakeScanner) FetchAll(ctx context.Context, q scanner.Query, _ scanner.FetchOptions) scanner.FetchResult {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return scanner.FetchResult{Err: ctx.Err()}
		}
	}
	return scanner.FetchResult{Records: f.records[q.Region], Pages: 1, Err: f.errs[q.Region]}
}

func (f *fakeScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	id, _ := raw["id"].(string)
	if id == "" {
		return domain.Notice{}, domain.ErrMalformedRecord
	}
	n := domain.Notice{
		IdentityHash:    f.name + ":" + id,
		SourcePlatform:  f.name,
		ExternalID:      id,
		ObjectSummary:   str(raw["object"]),
		RegionCode:      str(raw["uf"]),
		IssuingBodyName: str(raw["body"]),
		ProcessNumber:   str(raw["process"]),
		LifecycleStatus: domain.StatusCaptured,
		CapturedAt:      pc.Now,
	}
	if n.RegionCode == "" {
		n.RegionCode = pc.Query.Region
	}
	if v, ok := raw["value"].(float64); ok {
		n.EstimatedValue = &v
	}
	return n, nil
}

func (f *fakeScanner) seen() []scanner.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scanner.Query(nil), f.queries...)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func rec(id, object, uf string) scanner.RawRecord {
	return scanner.RawRecord{"id": id, "object": object, "uf": uf}
}

type recordingPublisher struct {
	mu     sync.Mutex
	hashes []string
	err    error
}

func (p *recordingPublisher) PublishCaptured(_ context.Context, n domain.Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hashes = append(p.hashes, n.IdentityHash)
	return p.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, digest)
	return nil
}
