package parser

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/auth"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
	"EditaisScanner/internal/scanner"
)

const (
	partnerBaseURL     = "https://api.licitardigital.com.br"
	partnerProcessPath = "/api/v1/partner/process/"
	partnerMaxPageSize = 100
	partnerMaxPages    = 10
)

// PartnerConfig configures the Basic-Auth partner API.
type PartnerConfig struct {
	BaseURL      string
	PageSize     int
	Regions      []string
	ProcessTypes []string
}

// PartnerScanner lists processes from the partner API. It shares the portal's
// platform tag so both feeds dedup against each other.
type PartnerScanner struct {
	base
	baseURL string
	caps    scanner.Capabilities
}

// NewPartnerScanner builds the partner strategy.
func NewPartnerScanner(cfg PartnerConfig, client *httpclient.Client, session *auth.Manager, logger *slog.Logger) *PartnerScanner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = partnerBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > partnerMaxPageSize {
		cfg.PageSize = partnerMaxPageSize
	}
	return &PartnerScanner{
		base:    newBase("licitardigital-partner", licitarPlatform, client, session, cfg.PageSize, logger),
		baseURL: cfg.BaseURL,
		caps: scanner.Capabilities{
			PerRegion:         len(cfg.Regions) > 0,
			PerCategory:       len(cfg.ProcessTypes) > 0,
			DefaultRegions:    cfg.Regions,
			DefaultCategories: cfg.ProcessTypes,
		},
	}
}

// Capabilities reports state and process type as optional server-side filters.
func (p *PartnerScanner) Capabilities() scanner.Capabilities { return p.caps }

// FetchPage requests limit/offset from the process listing.
func (p *PartnerScanner) FetchPage(ctx context.Context, q scanner.Query, offset, limit int) (scanner.RawPage, error) {
	limit = p.limit(limit)
	params := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	if q.Category != "" {
		params.Set("processType", q.Category)
	}
	if q.Region != "" {
		params.Set("state", q.Region)
	}
	if !q.Window.Start.IsZero() && q.Window.Start.Equal(q.Window.End) {
		params.Set("publishedDate", q.Window.Start.Format("2006-01-02"))
	}

	resp, err := p.do(ctx, httpclient.Request{Method: http.MethodGet, URL: p.baseURL + partnerProcessPath, Query: params})
	if err != nil {
		return scanner.RawPage{}, err
	}

	records, env, err := decodeRecords(resp, "data")
	if err != nil {
		return scanner.RawPage{}, err
	}
	if status := env.String("status"); status != "" && status != "success" {
		p.logger.Warn("partner listing answered without success", "status", status)
		return scanner.RawPage{}, nil
	}

	page := scanner.RawPage{Records: records, Total: intOf(env.Float("pagination.total"))}
	next := env.Float("pagination.nextOffset")
	switch {
	case next != nil:
		page.NextOffset = int(*next)
		page.HasMore = page.NextOffset > offset
	case page.Total > 0:
		page.HasMore = offset+len(records) < page.Total
	default:
		page.HasMore = len(records) >= limit
	}
	return page, nil
}

// FetchAll follows nextOffset for at most ten pages and keeps records published in the window.
func (p *PartnerScanner) FetchAll(ctx context.Context, q scanner.Query, opts scanner.FetchOptions) scanner.FetchResult {
	if opts.MaxPages <= 0 || opts.MaxPages > partnerMaxPages {
		opts.MaxPages = partnerMaxPages
	}
	return scanner.Paginate(ctx, p.pageSize, opts, func(ctx context.Context, offset, limit int) (scanner.RawPage, error) {
		page, err := p.FetchPage(ctx, q, offset, limit)
		if err != nil {
			return page, err
		}
		if page.NextOffset <= offset {
			page.NextOffset = offset + len(page.Records)
		}
		page.Records, _ = filterWindow(page.Records, q.Window, "publishedDate || publishDate")
		return page, nil
	}, nil)
}

// Normalize maps a partner process. Organization data may be nested or flat.
func (p *PartnerScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	rec := p.record(raw, pc)

	id := rec.String("id")
	taxID := rec.String("organization.docNumber", "organizationDocNumber")
	process := rec.String("processNumber")
	number := rec.String("number", "noticeNumber")
	hash, err := normalize.IdentityHash(p.platform, id, taxID, process, number)
	if err != nil {
		return domain.Notice{}, err
	}

	typ := rec.String("processType")
	category := licitarTypes[typ]
	if category == "" {
		category = typ
	}
	judgment := rec.String("judgmentCriteria")
	if label, ok := licitarJudgment[judgment]; ok {
		judgment = label
	}

	object := rec.String("object", "description")
	n := domain.Notice{
		IdentityHash:     hash,
		SourcePlatform:   p.platform,
		ExternalID:       id,
		ProcessNumber:    process,
		NoticeNumber:     number,
		IssuingBodyName:  rec.String("organization.name", "organization.corporateName", "organizationName", "orgao.razaoSocial"),
		IssuingBodyTaxID: taxID,
		UnitName:         rec.String("organization.unitName", "unitName"),
		RegionCode:       rec.String("organization.state", "state"),
		Municipality:     rec.String("organization.city", "organization.municipality", "city"),
		ObjectSummary:    object,
		ObjectFullText:   object,
		CategoryLabel:    category,
		JudgmentCriteria: judgment,
		PublishedAt:      rec.Time("publishedDate", "publishDate"),
		ProposalOpensAt:  rec.Time("openingDate", "proposalStartDate"),
		ProposalClosesAt: rec.Time("closingDate", "proposalEndDate"),
		DisputeStartsAt:  rec.Time("disputeDate", "disputeDateTime"),
		EstimatedValue:   rec.Float("estimatedValue", "value"),
		OriginURL:        rec.String("url", "link"),
		SourceStatus:     rec.String("status"),
	}
	if n.OriginURL == "" && id != "" {
		n.OriginURL = licitarProcessURL(id)
	}

	srp, present := rec.Bool("isSRP", "srp")
	finalize(&n, srp, present, pc)
	return n, nil
}
