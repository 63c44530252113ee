package parser

import (
	"context"
	"log/slog"
	"net/http"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/auth"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
	"EditaisScanner/internal/scanner"
)

const (
	licitarPlatform       = "licitardigital"
	licitarManagerURL     = "https://manager-api.licitardigital.com.br"
	licitarAppURL         = "https://app2.licitardigital.com.br"
	licitarAMMURL         = "https://ammlicita.org.br/processo/"
	licitarSearchPath     = "/auction-notice/doSearchAuctionNotice"
	licitarPortalPageSize = 20
	licitarPortalCap      = 200
)

// LicitarPortalConfig configures the portal search API.
type LicitarPortalConfig struct {
	BaseURL    string
	MaxResults int
}

// LicitarPortalScanner searches the portal behind a challenge-protected login.
// The API ignores region and date filters; the window is applied client-side.
type LicitarPortalScanner struct {
	base
	cfg LicitarPortalConfig
}

// NewLicitarPortalScanner builds the portal strategy.
func NewLicitarPortalScanner(cfg LicitarPortalConfig, client *httpclient.Client, session *auth.Manager, logger *slog.Logger) *LicitarPortalScanner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = licitarManagerURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = licitarPortalCap
	}
	return &LicitarPortalScanner{
		base: newBase("licitardigital", licitarPlatform, client, session, licitarPortalPageSize, logger),
		cfg:  cfg,
	}
}

// Capabilities reports a single combination per window.
func (l *LicitarPortalScanner) Capabilities() scanner.Capabilities { return scanner.Capabilities{} }

type licitarSearch struct {
	Filter licitarFilter `json:"filter"`
	Offset int           `json:"offset"`
}

type licitarFilter struct {
	SupliesProviders     []string `json:"supliesProviders"`
	ShortFilter          string   `json:"shortFilter"`
	StartDate            int64    `json:"startDate"`
	StartDatePublication int64    `json:"startDatePublication"`
	EndDate              int64    `json:"endDate"`
	EndDatePublication   int64    `json:"endDatePublication"`
	OrganizationUnitID   *int64   `json:"organizationUnitId"`
	SearchField          string   `json:"searchField"`
	BiddingStageID       *int64   `json:"biddingStageId"`
	RuleID               *int64   `json:"ruleId"`
	LegalSupportID       *int64   `json:"legalSupportId"`
	IsCanceled           bool     `json:"isCanceled"`
}

// FetchPage posts the search at offset. The portal fixes its own page size.
func (l *LicitarPortalScanner) FetchPage(ctx context.Context, q scanner.Query, offset, _ int) (scanner.RawPage, error) {
	body := licitarSearch{
		Filter: licitarFilter{SupliesProviders: []string{}, ShortFilter: "all"},
		Offset: offset,
	}
	resp, err := l.do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    l.cfg.BaseURL + licitarSearchPath,
		JSON:   body,
		Header: http.Header{
			"Origin":  {licitarAppURL},
			"Referer": {licitarAppURL + "/"},
		},
	})
	if err != nil {
		return scanner.RawPage{}, err
	}

	records, env, err := decodeRecords(resp, "data")
	if err != nil {
		return scanner.RawPage{}, err
	}
	if status := env.String("status"); status != "" && status != "success" {
		l.logger.Warn("search answered without success", "status", status)
		return scanner.RawPage{}, nil
	}
	total := intOf(env.Float("meta.count"))
	page := scanner.RawPage{Records: records, Total: total}
	if total > 0 {
		page.HasMore = offset+len(records) < total
	} else {
		page.HasMore = len(records) >= licitarPortalPageSize
	}
	return page, nil
}

// FetchAll keeps records inserted inside the window and stops once a page
// holds nothing newer than the window start.
func (l *LicitarPortalScanner) FetchAll(ctx context.Context, q scanner.Query, opts scanner.FetchOptions) scanner.FetchResult {
	maxPages := (l.cfg.MaxResults + licitarPortalPageSize - 1) / licitarPortalPageSize
	if opts.MaxPages <= 0 || opts.MaxPages > maxPages {
		opts.MaxPages = maxPages
	}
	return scanner.Paginate(ctx, licitarPortalPageSize, opts, func(ctx context.Context, offset, limit int) (scanner.RawPage, error) {
		page, err := l.FetchPage(ctx, q, offset, limit)
		if err != nil {
			return page, err
		}
		fetched := len(page.Records)
		kept, older := filterWindow(page.Records, q.Window, "dateTimeInsert")
		page.Records = kept
		page.NextOffset = offset + fetched
		if fetched > 0 && older == fetched {
			page.HasMore = false
		}
		return page, nil
	}, nil)
}

// filterWindow keeps records whose field lies in w and counts those older than it.
// Records without a parseable timestamp are kept.
func filterWindow(records []scanner.RawRecord, w domain.Window, field string) (kept []scanner.RawRecord, older int) {
	for _, raw := range records {
		t := normalize.NewRecord(raw, nil, nil).Time(field)
		if t != nil && !w.Start.IsZero() && t.Before(w.Start) {
			older++
			continue
		}
		if windowIn(t, w) {
			kept = append(kept, raw)
		}
	}
	return kept, older
}

// Normalize maps an auction notice; id is the native id.
func (l *LicitarPortalScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	rec := l.record(raw, pc)

	id := rec.String("id")
	body := rec.String("organizationName")
	number := rec.String("auctionNumber")
	hash, err := normalize.IdentityHash(l.platform, id, body, number, rec.String("accreditationNumber"))
	if err != nil {
		return domain.Notice{}, err
	}

	category := licitarTypes[rec.String("auctionType")]
	if category == "" {
		category = rec.String("auctionType")
	}
	status := modalityLabel(licitarStages, rec.String("biddingStageId"))

	object := rec.String("simpleDescription", "description")
	n := domain.Notice{
		IdentityHash:     hash,
		SourcePlatform:   l.platform,
		ExternalID:       id,
		ProcessNumber:    rec.String("accreditationNumber", "processNumber"),
		NoticeNumber:     number,
		IssuingBodyName:  body,
		IssuingBodyTaxID: rec.String("organizationDocNumber"),
		UnitName:         rec.String("organizationUnitName"),
		RegionCode:       rec.String("state", "organizationState"),
		Municipality:     rec.String("city", "organizationCity"),
		ObjectSummary:    object,
		ObjectFullText:   object,
		CategoryLabel:    category,
		JudgmentCriteria: licitarJudgment[rec.String("judgmentCriterion")],
		PublishedAt:      rec.Time("dateTimeInsert"),
		ProposalOpensAt:  rec.Time("auctionStartDate"),
		DisputeStartsAt:  rec.Time("startDateTimeDispute"),
		EstimatedValue:   rec.Float("estimatedValue", "value"),
		SourceStatus:     status,
	}
	if id != "" {
		if rec.String("platform") == "ammlicita" {
			n.OriginURL = licitarAMMURL + id
		} else {
			n.OriginURL = licitarProcessURL(id)
		}
	}

	srp, present := rec.Bool("isSRP", "srp")
	finalize(&n, srp, present, pc)
	return n, nil
}

// licitarProcessURL is the public process page shared by the portal and partner feeds.
func licitarProcessURL(id string) string {
	return licitarAppURL + "/processo/" + id
}
