package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
	"EditaisScanner/internal/scanner"
)

var (
	testWindow = domain.Window{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
	}
	testNow = time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{Source: "test", MaxAttempts: 1}, nil)
}

func testContext(q scanner.Query) scanner.PlatformContext {
	return scanner.PlatformContext{Query: q, Location: time.UTC, Now: testNow}
}

func TestPNCPFetchPageBuildsQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contratacoes/publicacao" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		for key, want := range map[string]string{
			"dataInicial":                 "20240501",
			"dataFinal":                   "20240503",
			"codigoModalidadeContratacao": "8",
			"uf":                          "RJ",
			"pagina":                      "2",
			"tamanhoPagina":               "10",
		} {
			if got := q.Get(key); got != want {
				t.Errorf("%s: expected %s, got %s", key, want, got)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"numeroControlePNCP":"1"},{"numeroControlePNCP":"2"}],"totalRegistros":12,"totalPaginas":2,"paginasRestantes":0}`)
	}))
	defer srv.Close()

	p := NewPNCPScanner(PNCPConfig{BaseURL: srv.URL, PageSize: 10}, testClient(), nil)
	page, err := p.FetchPage(context.Background(), scanner.Query{Window: testWindow, Region: "RJ", Category: "8"}, 10, 10)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page.Records))
	}
	if page.Total != 12 || page.HasMore {
		t.Fatalf("unexpected paging: total=%d hasMore=%v", page.Total, page.HasMore)
	}
}

func TestPNCPUnprocessableIsEmptyPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"sem dados"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := NewPNCPScanner(PNCPConfig{BaseURL: srv.URL}, testClient(), nil)
	res := p.FetchAll(context.Background(), scanner.Query{Window: testWindow, Category: "6"}, scanner.FetchOptions{})
	if res.Err != nil {
		t.Fatalf("expected no error, got %v", res.Err)
	}
	if len(res.Records) != 0 || res.Pages != 1 {
		t.Fatalf("expected one empty page, got %d records in %d pages", len(res.Records), res.Pages)
	}
}

func TestPNCPRequiresModality(t *testing.T) {
	t.Parallel()

	p := NewPNCPScanner(PNCPConfig{BaseURL: "http://127.0.0.1:0"}, testClient(), nil)
	if _, err := p.FetchPage(context.Background(), scanner.Query{Window: testWindow}, 0, 10); err == nil {
		t.Fatalf("expected error without modality")
	}
	if caps := p.Capabilities(); !caps.PerCategory || len(caps.DefaultCategories) != 5 {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
}

func TestPNCPNormalize(t *testing.T) {
	t.Parallel()

	raw := scanner.RawRecord{
		"numeroControlePNCP": "12345678000199-1-000042/2024",
		"numeroCompra":       "42",
		"anoCompra":          2024.0,
		"processo":           " 2024/0042 ",
		"orgaoEntidade": map[string]any{
			"cnpj":        "12345678000199",
			"razaoSocial": "MUNICIPIO DE NITEROI",
		},
		"unidadeOrgao": map[string]any{
			"codigoUnidade": "1",
			"nomeUnidade":   "Secretaria de Saúde",
			"ufSigla":       "rj",
			"municipioNome": "Niterói",
		},
		"objetoCompra":             "Registro de preços para aquisição de insumos hospitalares",
		"modalidadeId":             8.0,
		"dataPublicacaoPncp":       "2024-05-02T09:30:00",
		"dataEncerramentoProposta": "2024-05-06T10:00:00",
		"valorTotalEstimado":       "R$ 612.000,00",
		"linkSistemaOrigem":        "https://compras.exemplo.gov.br/42",
		"situacaoCompraNome":       "Divulgada no PNCP",
	}

	p := NewPNCPScanner(PNCPConfig{}, testClient(), nil)
	n, err := p.Normalize(raw, testContext(scanner.Query{Category: "8"}))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	want, _ := normalize.IdentityHash("pncp", "12345678000199-1-000042/2024")
	if n.IdentityHash != want {
		t.Fatalf("unexpected identity hash %s", n.IdentityHash)
	}
	if n.ProcessNumber != "2024/0042" {
		t.Fatalf("process number not trimmed: %q", n.ProcessNumber)
	}
	if n.RegionCode != "RJ" || n.Municipality != "Niterói" {
		t.Fatalf("unexpected location %s/%s", n.Municipality, n.RegionCode)
	}
	if n.CategoryLabel != "Pregão - Eletrônico" {
		t.Fatalf("unexpected category %q", n.CategoryLabel)
	}
	if !n.IsPriceRegistry {
		t.Fatalf("expected price registry inferred from object text")
	}
	if n.EstimatedValue == nil || *n.EstimatedValue != 612000 {
		t.Fatalf("unexpected value %v", n.EstimatedValue)
	}
	if n.OriginURL != "https://pncp.gov.br/app/editais/12345678000199-1-000042/2024" {
		t.Fatalf("unexpected origin url %s", n.OriginURL)
	}
	if n.LifecycleStatus != domain.StatusCaptured || !n.CapturedAt.Equal(testNow) {
		t.Fatalf("capture metadata not set: %s %s", n.LifecycleStatus, n.CapturedAt)
	}
	if n.ProposalClosesAt == nil || n.ProposalClosesAt.Day() != 6 {
		t.Fatalf("unexpected closing date %v", n.ProposalClosesAt)
	}
}

func TestPNCPNormalizeCompositeFallback(t *testing.T) {
	t.Parallel()

	raw := scanner.RawRecord{
		"orgaoEntidadeCnpj":         "111",
		"unidadeOrgaoCodigoUnidade": "22",
		"numeroCompra":              "3",
		"anoCompra":                 "2024",
		"orgaoEntidadeRazaoSocial":  "Prefeitura Municipal de Exemplo",
	}
	p := NewPNCPScanner(PNCPConfig{}, testClient(), nil)
	n, err := p.Normalize(raw, testContext(scanner.Query{Region: "SP"}))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	want, _ := normalize.IdentityHash("pncp", "", "111", "22", "3", "2024")
	if n.IdentityHash != want {
		t.Fatalf("expected composite hash")
	}
	if n.Municipality != "Exemplo" {
		t.Fatalf("expected municipality from body, got %q", n.Municipality)
	}
	if n.RegionCode != "SP" {
		t.Fatalf("expected query region fallback, got %q", n.RegionCode)
	}

	if _, err := p.Normalize(scanner.RawRecord{"objetoCompra": "x"}, testContext(scanner.Query{})); err == nil {
		t.Fatalf("expected malformed record error")
	}
}

func TestComprasGovNormalizeUsesComposite(t *testing.T) {
	t.Parallel()

	raw := func(control string) scanner.RawRecord {
		return scanner.RawRecord{
			"numeroControlePNCP":        control,
			"orgaoEntidadeCnpj":         "00394452000103",
			"unidadeOrgaoCodigoUnidade": "160001",
			"numeroCompra":              "90001",
			"anoCompraPncp":             2024.0,
			"codigoModalidade":          6.0,
			"orgaoEntidadeRazaoSocial":  "COMANDO DO EXERCITO",
			"unidadeOrgaoUfSigla":       "DF",
			"srp":                       false,
			"objetoCompra":              "Aquisição de material de expediente",
		}
	}

	c := NewComprasGovScanner(ComprasGovConfig{}, testClient(), nil)
	first, err := c.Normalize(raw("A"), testContext(scanner.Query{}))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	second, err := c.Normalize(raw("B"), testContext(scanner.Query{}))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if first.IdentityHash != second.IdentityHash {
		t.Fatalf("control number must not change the identity")
	}
	if first.NoticeNumber != "90001/2024" {
		t.Fatalf("unexpected notice number %q", first.NoticeNumber)
	}
	if first.CategoryLabel != "Pregão - Eletrônico" {
		t.Fatalf("unexpected category %q", first.CategoryLabel)
	}
	if first.IsPriceRegistry {
		t.Fatalf("explicit srp=false must hold")
	}
}

func TestComprasGovLegacyCapsPages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Query().Get("data_publicacao_inicial") != "2024-05-01" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"resultado":[{"id_compra":"%d"}],"paginasRestantes":99}`, n)
	}))
	defer srv.Close()

	c := NewComprasGovLegacyScanner(ComprasGovConfig{BaseURL: srv.URL, PageSize: 1}, testClient(), nil)
	res := c.FetchAll(context.Background(), scanner.Query{Window: testWindow}, scanner.FetchOptions{})
	if res.Err != nil {
		t.Fatalf("FetchAll returned error: %v", res.Err)
	}
	if res.Pages != 10 || len(res.Records) != 10 {
		t.Fatalf("expected 10 pages, got %d pages and %d records", res.Pages, len(res.Records))
	}
}
