package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
	"EditaisScanner/internal/scanner"
)

var (
	errNoListing = errors.New("no listing endpoint answered")

	exchangeEnvelopeKeys = []string{"data", "items", "processes", "processos", "editais", "result", "resultado"}
	processNumberExpr    = regexp.MustCompile(`\d+[/.-]\d{4}`)
	exchangeDateExpr     = regexp.MustCompile(`\d{2}/\d{2}/\d{4}(?: \d{2}:\d{2})?`)
)

// ExchangeConfig describes one commodity-exchange style portal.
type ExchangeConfig struct {
	Name          string
	BaseURL       string
	Probes        []string
	PageSizeParam string
	RequireJSON   bool
	HTMLPath      string
	RowSelector   string
	LinkSelector  string
	ViewPath      string
	PageSize      int
	MaxPages      int
}

// BLLConfig is the BLL Compras portal.
func BLLConfig() ExchangeConfig {
	return exchangeDefaults("bll", "https://bllcompras.com")
}

// BNCConfig is the BNC Compras portal.
func BNCConfig() ExchangeConfig {
	return exchangeDefaults("bnc", "https://bnccompras.com")
}

// LicitanetConfig is the Licitanet portal.
func LicitanetConfig() ExchangeConfig {
	return ExchangeConfig{
		Name:          "licitanet",
		BaseURL:       "https://licitanet.com.br",
		Probes:        []string{"/api/processos", "/api/editais", "/api/v1/processos", "/processos/buscar", "/api/Process/Search"},
		PageSizeParam: "per_page",
		RequireJSON:   true,
		HTMLPath:      "/processos",
		RowSelector:   "table tbody tr, .processo-item, .card-processo, .process-item",
		LinkSelector:  `a[href*="/processo"]`,
		ViewPath:      "/processos/",
		PageSize:      50,
		MaxPages:      10,
	}
}

func exchangeDefaults(name, baseURL string) ExchangeConfig {
	return ExchangeConfig{
		Name:          name,
		BaseURL:       baseURL,
		Probes:        []string{"/Process/GetPublicProcessList", "/api/Process/Search", "/Process/SearchPublicProcess"},
		PageSizeParam: "pageSize",
		HTMLPath:      "/Process/ProcessSearchPublic?param1=1",
		RowSelector:   "table tbody tr, .process-item, .card-process",
		LinkSelector:  `a[href*="/Process/"]`,
		ViewPath:      "/Process/ProcessView/",
		PageSize:      50,
		MaxPages:      10,
	}
}

// ExchangeScanner probes a list of JSON endpoints and falls back to scraping
// the public search page. The first endpoint that answers is remembered.
type ExchangeScanner struct {
	base
	cfg ExchangeConfig

	mu       sync.Mutex
	probe    string
	scraping bool
}

// scrapedKey marks rows taken from the HTML page. They carry no UF and are
// not scoped to the query region.
const scrapedKey = "_scraped"

// NewExchangeScanner builds a public, unauthenticated exchange strategy.
func NewExchangeScanner(cfg ExchangeConfig, client *httpclient.Client, logger *slog.Logger) *ExchangeScanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.PageSizeParam == "" {
		cfg.PageSizeParam = "pageSize"
	}
	return &ExchangeScanner{
		base: newBase(cfg.Name, cfg.Name, client, nil, cfg.PageSize, logger),
		cfg:  cfg,
	}
}

// Authenticate has no session to open; it discovers the listing endpoint so
// Capabilities knows whether UF filtering happens server-side.
func (e *ExchangeScanner) Authenticate(ctx context.Context) error {
	e.mu.Lock()
	known := e.probe
	e.mu.Unlock()
	if known != "" {
		return nil
	}
	_, _, err := e.discover(ctx, scanner.Query{}, 1, e.limit(0))
	return err
}

// Capabilities reports UF as a server-side filter unless only the HTML page answers.
func (e *ExchangeScanner) Capabilities() scanner.Capabilities {
	e.mu.Lock()
	defer e.mu.Unlock()
	return scanner.Capabilities{PerRegion: !e.scraping}
}

// FetchPage uses the remembered endpoint or walks the probes, then the HTML page.
func (e *ExchangeScanner) FetchPage(ctx context.Context, q scanner.Query, offset, limit int) (scanner.RawPage, error) {
	limit = e.limit(limit)
	pageNo := offset/limit + 1

	e.mu.Lock()
	known, scraping := e.probe, e.scraping
	e.mu.Unlock()

	switch {
	case known != "":
		return e.fetchJSON(ctx, known, q, pageNo, limit)
	case scraping:
		return e.scrape(ctx, offset)
	}

	page, found, err := e.discover(ctx, q, pageNo, limit)
	if err != nil || found {
		return page, err
	}
	return e.scrape(ctx, offset)
}

// discover walks the probes; found reports whether one of them answered.
func (e *ExchangeScanner) discover(ctx context.Context, q scanner.Query, pageNo, limit int) (scanner.RawPage, bool, error) {
	for _, path := range e.cfg.Probes {
		page, err := e.fetchJSON(ctx, path, q, pageNo, limit)
		if err == nil {
			e.remember(path)
			return page, true, nil
		}
		if ctx.Err() != nil {
			return scanner.RawPage{}, false, ctx.Err()
		}
		if errors.Is(err, domain.ErrChallenge) {
			return scanner.RawPage{}, false, err
		}
		e.logger.Debug("listing probe failed", "path", path, "error", err)
	}

	e.mu.Lock()
	if !e.scraping {
		e.logger.Info("no listing endpoint answered, scraping public page")
	}
	e.scraping = true
	e.mu.Unlock()
	return scanner.RawPage{}, false, nil
}

func (e *ExchangeScanner) scrape(ctx context.Context, offset int) (scanner.RawPage, error) {
	if offset > 0 || e.cfg.HTMLPath == "" {
		return scanner.RawPage{}, nil
	}
	return e.fetchHTML(ctx)
}

func (e *ExchangeScanner) remember(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.probe != path {
		e.logger.Info("listing endpoint found", "path", path)
		e.probe = path
	}
	e.scraping = false
}

func (e *ExchangeScanner) fetchJSON(ctx context.Context, path string, q scanner.Query, pageNo, limit int) (scanner.RawPage, error) {
	params := url.Values{
		"page":              {strconv.Itoa(pageNo)},
		e.cfg.PageSizeParam: {strconv.Itoa(limit)},
	}
	if q.Region != "" {
		params.Set("uf", q.Region)
	}
	resp, err := e.do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    e.cfg.BaseURL + path,
		Query:  params,
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return scanner.RawPage{}, err
	}
	if e.cfg.RequireJSON && !resp.IsJSON() {
		return scanner.RawPage{}, fmt.Errorf("%w: %s", errNoListing, resp.Header.Get("Content-Type"))
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 || (body[0] != '{' && body[0] != '[') {
		return scanner.RawPage{}, errNoListing
	}

	records, env, err := decodeRecords(resp, exchangeEnvelopeKeys...)
	if err != nil {
		return scanner.RawPage{}, err
	}
	if len(records) == 0 && env.Value(exchangeEnvelopeKeys...) == nil && body[0] == '{' {
		return scanner.RawPage{}, errNoListing
	}

	total := intOf(env.Float("total", "totalCount", "totalRegistros", "count", "meta.total"))
	page := scanner.RawPage{Records: records, Total: total}
	if total > 0 {
		page.HasMore = (pageNo-1)*limit+len(records) < total
	} else {
		page.HasMore = len(records) >= limit
	}
	return page, nil
}

// fetchHTML scrapes the public search page into raw records.
func (e *ExchangeScanner) fetchHTML(ctx context.Context) (scanner.RawPage, error) {
	resp, err := e.do(ctx, httpclient.Request{Method: http.MethodGet, URL: e.cfg.BaseURL + e.cfg.HTMLPath})
	if err != nil {
		return scanner.RawPage{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return scanner.RawPage{}, fmt.Errorf("parse document: %w", err)
	}
	records := extractRows(doc, e.cfg)
	e.logger.Debug("html fallback", "rows", len(records))
	return scanner.RawPage{Records: records}, nil
}

func extractRows(doc *goquery.Document, cfg ExchangeConfig) []scanner.RawRecord {
	var records []scanner.RawRecord
	seen := map[string]struct{}{}

	collect := func(_ int, sel *goquery.Selection) {
		rec := parseRow(sel, cfg)
		if rec == nil {
			return
		}
		key := fmt.Sprint(rec["id"], rec["processNumber"])
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}

	doc.Find(cfg.RowSelector).Each(collect)
	if len(records) == 0 && cfg.LinkSelector != "" {
		doc.Find(cfg.LinkSelector).Each(func(i int, link *goquery.Selection) {
			collect(i, link.Parent())
		})
	}
	return records
}

func parseRow(sel *goquery.Selection, cfg ExchangeConfig) scanner.RawRecord {
	text := strings.Join(strings.Fields(sel.Text()), " ")
	if text == "" {
		return nil
	}

	rec := scanner.RawRecord{scrapedKey: true}
	link := sel.Find(cfg.LinkSelector).First()
	if link.Length() == 0 && goquery.NodeName(sel) == "a" {
		link = sel
	}
	if href, ok := link.Attr("href"); ok {
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(href, "http") {
			href = strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.TrimPrefix(href, "/")
		}
		rec["url"] = href
		if parsed, err := url.Parse(href); err == nil {
			segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
			rec["id"] = segments[len(segments)-1]
		}
	}

	cells := sel.Find("td")
	if cells.Length() >= 3 {
		rec["processNumber"] = cellText(cells, 0)
		rec["organName"] = cellText(cells, 1)
		rec["object"] = cellText(cells, 2)
		if cells.Length() >= 4 {
			rec["openingDate"] = exchangeDateExpr.FindString(cellText(cells, 3))
		}
	} else {
		rec["processNumber"] = processNumberExpr.FindString(text)
		rec["object"] = text
		rec["openingDate"] = exchangeDateExpr.FindString(text)
	}

	if rec["processNumber"] == "" && rec["id"] == nil {
		return nil
	}
	return rec
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.Join(strings.Fields(cells.Eq(i).Text()), " ")
}

// FetchAll pages the discovered endpoint and keeps records published in the window.
func (e *ExchangeScanner) FetchAll(ctx context.Context, q scanner.Query, opts scanner.FetchOptions) scanner.FetchResult {
	if e.cfg.MaxPages > 0 && (opts.MaxPages <= 0 || opts.MaxPages > e.cfg.MaxPages) {
		opts.MaxPages = e.cfg.MaxPages
	}
	return scanner.Paginate(ctx, e.pageSize, opts, func(ctx context.Context, offset, limit int) (scanner.RawPage, error) {
		page, err := e.FetchPage(ctx, q, offset, limit)
		if err != nil {
			return page, err
		}
		page.NextOffset = offset + len(page.Records)
		page.Records, _ = filterWindow(page.Records, q.Window, "publicationDate || dataPublicacao || dataCriacao")
		return page, nil
	}, nil)
}

// Normalize maps a probed JSON item or a scraped row.
func (e *ExchangeScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	if scraped, _ := raw[scrapedKey].(bool); scraped {
		pc.Query.Region = ""
	}
	rec := e.record(raw, pc)

	id := rec.String("id", "processId", "idProcesso")
	body := rec.String("organName", "orgao", "buyer", "entidade", "orgao.nome")
	process := rec.String("processNumber", "numero", "numeroProcesso")
	hash, err := normalize.IdentityHash(e.platform, id, body, process)
	if err != nil {
		return domain.Notice{}, err
	}

	object := rec.String("object", "objeto", "description", "descricao")
	n := domain.Notice{
		IdentityHash:    hash,
		SourcePlatform:  e.platform,
		ExternalID:      id,
		ProcessNumber:   process,
		NoticeNumber:    rec.String("noticeNumber", "numeroEdital"),
		IssuingBodyName: body,
		RegionCode:      rec.String("uf", "state", "estado"),
		Municipality:    rec.String("city", "municipio", "cidade"),
		ObjectSummary:   object,
		ObjectFullText:  object,
		CategoryLabel:   rec.String("modality", "modalidade"),
		PublishedAt:     rec.Time("publicationDate", "dataPublicacao", "dataCriacao"),
		ProposalOpensAt: rec.Time("openingDate", "dataAbertura", "dataSessao"),
		EstimatedValue:  rec.Float("estimatedValue", "valor", "valorEstimado"),
		OriginURL:       rec.String("url", "link"),
		SourceStatus:    rec.String("status", "situacao"),
	}
	if n.OriginURL == "" && id != "" {
		n.OriginURL = strings.TrimSuffix(e.cfg.BaseURL, "/") + e.cfg.ViewPath + id
	}

	srp, present := rec.Bool("srp", "isSRP")
	finalize(&n, srp, present, pc)
	return n, nil
}
