package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/auth"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
	"EditaisScanner/internal/scanner"
)

const defaultSummaryMax = 500

// base carries what every platform strategy shares: identity, transport and session.
type base struct {
	name     string
	platform string
	client   *httpclient.Client
	session  *auth.Manager
	pageSize int
	logger   *slog.Logger
}

func newBase(name, platform string, client *httpclient.Client, session *auth.Manager, pageSize int, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return base{
		name:     name,
		platform: platform,
		client:   client,
		session:  session,
		pageSize: pageSize,
		logger:   logger.With("component", "scanner", "source", name),
	}
}

// Name identifies the strategy inside the registry.
func (b *base) Name() string { return b.name }

// Platform is the tag written to source_platform and the identity hash.
func (b *base) Platform() string { return b.platform }

// Authenticate establishes the session for sources that need one.
func (b *base) Authenticate(ctx context.Context) error {
	if b.session == nil {
		return nil
	}
	_, err := b.session.Session(ctx)
	return err
}

// do sends req, applying the current session and re-authenticating once on rejection.
func (b *base) do(ctx context.Context, req httpclient.Request) (*httpclient.Response, error) {
	if b.session == nil {
		return b.client.Do(ctx, req)
	}

	var resp *httpclient.Response
	err := b.session.Do(ctx, func(s *auth.Session) error {
		r := req
		r.Header = req.Header.Clone()
		r.Cookies = append([]*http.Cookie(nil), req.Cookies...)
		s.Apply(&r)
		var err error
		resp, err = b.client.Do(ctx, r)
		return err
	})
	return resp, err
}

func (b *base) limit(requested int) int {
	if requested > 0 && (b.pageSize <= 0 || requested < b.pageSize) {
		return requested
	}
	return b.pageSize
}

func (b *base) record(raw scanner.RawRecord, pc scanner.PlatformContext) normalize.Record {
	logger := pc.Logger
	if logger == nil {
		logger = b.logger
	}
	return normalize.NewRecord(raw, pc.Location, logger)
}

// finalize applies the rules shared by every normalizer: trimming, summary
// truncation, municipality/UF backfill, SRP inference and capture metadata.
func finalize(n *domain.Notice, explicitSRP, srpPresent bool, pc scanner.PlatformContext) {
	n.ProcessNumber = strings.TrimSpace(n.ProcessNumber)
	n.NoticeNumber = strings.TrimSpace(n.NoticeNumber)
	n.IssuingBodyName = strings.TrimSpace(n.IssuingBodyName)
	n.UnitName = strings.TrimSpace(n.UnitName)
	n.ObjectFullText = strings.TrimSpace(n.ObjectFullText)

	max := pc.SummaryMax
	if max <= 0 {
		max = defaultSummaryMax
	}
	if strings.TrimSpace(n.ObjectSummary) == "" {
		n.ObjectSummary = n.ObjectFullText
	}
	n.ObjectSummary = normalize.Truncate(strings.TrimSpace(n.ObjectSummary), max)

	if strings.TrimSpace(n.Municipality) == "" {
		n.Municipality = normalize.MunicipalityFromBody(n.IssuingBodyName)
	}
	n.Municipality = strings.TrimSpace(n.Municipality)

	region := strings.ToUpper(strings.TrimSpace(n.RegionCode))
	if !normalize.IsFederativeUnit(region) {
		region = normalize.RegionFromText(n.IssuingBodyName, n.UnitName, n.ObjectFullText)
	}
	if region == "" && normalize.IsFederativeUnit(pc.Query.Region) {
		region = strings.ToUpper(pc.Query.Region)
	}
	n.RegionCode = region

	n.IsPriceRegistry = normalize.PriceRegistry(explicitSRP, srpPresent, n.ObjectFullText, n.CategoryLabel)
	n.LifecycleStatus = domain.StatusCaptured
	n.CapturedAt = pc.Now
	if n.CapturedAt.IsZero() {
		n.CapturedAt = time.Now()
	}
}

func windowIn(t *time.Time, w domain.Window) bool {
	if t == nil {
		return true
	}
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// decodeRecords reads a page body that is either a bare array or an envelope
// holding the array under one of keys. The envelope is returned for paging fields.
func decodeRecords(resp *httpclient.Response, keys ...string) ([]scanner.RawRecord, normalize.Record, error) {
	var body any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, normalize.Record{}, fmt.Errorf("decode %s: %w", resp.URL, err)
	}

	var items []any
	envelope := map[string]any{}
	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		envelope = v
		for _, key := range keys {
			if list, ok := v[key].([]any); ok {
				items = list
				break
			}
		}
	}

	records := make([]scanner.RawRecord, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			records = append(records, scanner.RawRecord(m))
		}
	}
	return records, normalize.NewRecord(envelope, nil, nil), nil
}

func intOf(p *float64) int {
	if p == nil {
		return 0
	}
	return int(*p)
}
