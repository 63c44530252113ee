package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"EditaisScanner/internal/config"
	"EditaisScanner/internal/scanner"
)

func TestExchangeRemembersWorkingProbe(t *testing.T) {
	t.Parallel()

	var firstProbe, secondProbe atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Process/GetPublicProcessList":
			firstProbe.Add(1)
			http.NotFound(w, r)
		case "/api/Process/Search":
			secondProbe.Add(1)
			if r.URL.Query().Get("uf") != "PR" || r.URL.Query().Get("pageSize") != "2" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			page := r.URL.Query().Get("page")
			fmt.Fprintf(w, `{"items":[{"id":"%s-1","processNumber":"1/2024"},{"id":"%s-2","processNumber":"2/2024"}],"total":3}`, page, page)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := BLLConfig()
	cfg.BaseURL = srv.URL
	cfg.PageSize = 2
	e := NewExchangeScanner(cfg, testClient(), nil)

	res := e.FetchAll(context.Background(), scanner.Query{Region: "PR"}, scanner.FetchOptions{})
	if res.Err != nil {
		t.Fatalf("FetchAll returned error: %v", res.Err)
	}
	if res.Pages != 2 {
		t.Fatalf("expected 2 pages, got %d", res.Pages)
	}
	if firstProbe.Load() != 1 || secondProbe.Load() != 2 {
		t.Fatalf("expected probe walk once, got %d/%d", firstProbe.Load(), secondProbe.Load())
	}
}

func TestExchangeFallsBackToHTML(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Process/ProcessSearchPublic" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><table><tbody>
		  <tr><td><a href="/Process/ProcessView/777">PE 12/2024</a></td><td>Prefeitura Municipal de Lages</td><td>Aquisição de pneus</td><td>20/05/2024 09:00</td></tr>
		  <tr><td><a href="/Process/ProcessView/778">PE 13/2024</a></td><td>Câmara Municipal de Lages</td><td>Serviços de limpeza</td><td>21/05/2024</td></tr>
		</tbody></table></body></html>`)
	}))
	defer srv.Close()

	cfg := BNCConfig()
	cfg.BaseURL = srv.URL
	e := NewExchangeScanner(cfg, testClient(), nil)

	res := e.FetchAll(context.Background(), scanner.Query{Window: testWindow}, scanner.FetchOptions{})
	if res.Err != nil {
		t.Fatalf("FetchAll returned error: %v", res.Err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 scraped rows, got %d", len(res.Records))
	}

	n, err := e.Normalize(res.Records[0], testContext(scanner.Query{}))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if n.ExternalID != "777" || n.ProcessNumber != "PE 12/2024" {
		t.Fatalf("unexpected ids %s/%s", n.ExternalID, n.ProcessNumber)
	}
	if n.OriginURL != srv.URL+"/Process/ProcessView/777" {
		t.Fatalf("unexpected origin url %s", n.OriginURL)
	}
	if n.Municipality != "Lages" || n.ObjectSummary != "Aquisição de pneus" {
		t.Fatalf("unexpected row mapping %q %q", n.Municipality, n.ObjectSummary)
	}
	if n.ProposalOpensAt == nil || n.ProposalOpensAt.Day() != 20 {
		t.Fatalf("unexpected opening date %v", n.ProposalOpensAt)
	}
}

func TestExchangeScrapedRowsAreNotRegionScoped(t *testing.T) {
	t.Parallel()

	var scrapes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Process/ProcessSearchPublic" {
			http.NotFound(w, r)
			return
		}
		scrapes.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<table><tbody>
		  <tr><td><a href="/Process/ProcessView/777">PE 12/2024</a></td><td>Prefeitura Municipal de Lages</td><td>Aquisição de pneus</td></tr>
		</tbody></table>`)
	}))
	defer srv.Close()

	cfg := BLLConfig()
	cfg.BaseURL = srv.URL
	e := NewExchangeScanner(cfg, testClient(), nil)

	if !e.Capabilities().PerRegion {
		t.Fatalf("expected server-side UF filter before discovery")
	}
	if err := e.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if e.Capabilities().PerRegion {
		t.Fatalf("expected client-side UF filter once only the public page answers")
	}

	q := scanner.Query{Window: testWindow, Region: "RJ"}
	res := e.FetchAll(context.Background(), q, scanner.FetchOptions{})
	if res.Err != nil || len(res.Records) != 1 {
		t.Fatalf("unexpected fetch result: %d records, err %v", len(res.Records), res.Err)
	}
	if scrapes.Load() != 1 {
		t.Fatalf("expected one scrape, got %d", scrapes.Load())
	}

	n, err := e.Normalize(res.Records[0], testContext(q))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if n.RegionCode != "" {
		t.Fatalf("scraped row stamped with query region %q", n.RegionCode)
	}
}

func TestExchangeDiscoveryKeepsRegionFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Process/GetPublicProcessList" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"9","processNumber":"9/2024"}],"total":1}`)
	}))
	defer srv.Close()

	cfg := BNCConfig()
	cfg.BaseURL = srv.URL
	e := NewExchangeScanner(cfg, testClient(), nil)

	if err := e.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if !e.Capabilities().PerRegion {
		t.Fatalf("expected server-side UF filter when a listing endpoint answers")
	}
}

func TestExtractRowsFromLinksOnly(t *testing.T) {
	t.Parallel()

	html := `<div><p><a href="/processos/55">Pregão 7/2024 - Aquisição de café</a></p></div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	cfg := LicitanetConfig()
	rows := extractRows(doc, cfg)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["id"] != "55" || rows[0]["processNumber"] != "7/2024" {
		t.Fatalf("unexpected row %v", rows[0])
	}
	if rows[0]["url"] != "https://licitanet.com.br/processos/55" {
		t.Fatalf("unexpected url %v", rows[0]["url"])
	}
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	sources := []config.SourceConfig{
		{Name: "pncp", Scanner: "pncp"},
		{Name: "bbmnet", Scanner: "bbmnet", Auth: config.AuthConfig{Username: "u", Password: "p"}},
		{Name: "licitardigital", Scanner: "licitardigital"},
		{Name: "licitardigital-partner", Scanner: "licitardigital-partner"},
		{Name: "bll", Scanner: "bll"},
		{Name: "legacy", Scanner: "comprasgov-legado", Disabled: true},
	}
	reg, err := BuildRegistry(sources, Deps{})
	if err != nil {
		t.Fatalf("BuildRegistry returned error: %v", err)
	}
	want := []string{"bbmnet", "bll", "licitardigital", "licitardigital-partner", "pncp"}
	if got := reg.Names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected registry %v", got)
	}

	portal, _ := reg.Resolve("licitardigital")
	partner, _ := reg.Resolve("licitardigital-partner")
	if portal.Platform() != partner.Platform() {
		t.Fatalf("portal and partner must share a platform tag")
	}

	if _, err := BuildRegistry([]config.SourceConfig{{Name: "x", Scanner: "nope"}}, Deps{}); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}
}
