package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
	"EditaisScanner/internal/scanner"
)

const (
	comprasGovBaseURL     = "https://dadosabertos.compras.gov.br"
	comprasGovCurrentPath = "/modulo-contratacoes/1_consultarContratacoes_PNCP_14133"
	comprasGovLegacyPath  = "/modulo-legado/1_consultarLicitacao"
	comprasGovMaxPageSize = 500
	comprasGovLegacyPages = 10
)

// ComprasGovConfig configures the federal purchasing open-data module.
type ComprasGovConfig struct {
	BaseURL    string
	PageSize   int
	Categories []string
	Regions    []string
}

// ComprasGovScanner reads contratações published under Law 14.133.
type ComprasGovScanner struct {
	base
	baseURL string
	caps    scanner.Capabilities
}

// NewComprasGovScanner builds the current-law strategy.
func NewComprasGovScanner(cfg ComprasGovConfig, client *httpclient.Client, logger *slog.Logger) *ComprasGovScanner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = comprasGovBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > comprasGovMaxPageSize {
		cfg.PageSize = 50
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultModalities
	}
	return &ComprasGovScanner{
		base:    newBase("comprasgov", "comprasgov", client, nil, cfg.PageSize, logger),
		baseURL: cfg.BaseURL,
		caps: scanner.Capabilities{
			PerRegion:         true,
			PerCategory:       true,
			DefaultRegions:    cfg.Regions,
			DefaultCategories: cfg.Categories,
		},
	}
}

// Capabilities reports that codigoModalidade is mandatory.
func (c *ComprasGovScanner) Capabilities() scanner.Capabilities { return c.caps }

// FetchPage requests one page of the contratações listing.
func (c *ComprasGovScanner) FetchPage(ctx context.Context, q scanner.Query, offset, limit int) (scanner.RawPage, error) {
	limit = c.limit(limit)
	if q.Category == "" {
		return scanner.RawPage{}, fmt.Errorf("comprasgov: modality is required")
	}
	params := url.Values{
		"pagina":                    {strconv.Itoa(offset/limit + 1)},
		"tamanhoPagina":             {strconv.Itoa(limit)},
		"dataPublicacaoPncpInicial": {q.Window.Start.Format("2006-01-02")},
		"dataPublicacaoPncpFinal":   {q.Window.End.Format("2006-01-02")},
		"codigoModalidade":          {q.Category},
	}
	if q.Region != "" {
		params.Set("unidadeOrgaoUfSigla", q.Region)
	}

	resp, err := c.do(ctx, httpclient.Request{Method: http.MethodGet, URL: c.baseURL + comprasGovCurrentPath, Query: params})
	if httpclient.HasStatus(err, http.StatusUnprocessableEntity) {
		return scanner.RawPage{}, nil
	}
	if err != nil {
		return scanner.RawPage{}, err
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return scanner.RawPage{}, nil
	}

	records, env, err := decodeRecords(resp, "resultado", "data")
	if err != nil {
		return scanner.RawPage{}, err
	}
	page := scanner.RawPage{Records: records, Total: intOf(env.Float("totalRegistros"))}
	if remaining := env.Float("paginasRestantes"); remaining != nil {
		page.HasMore = *remaining > 0
	} else {
		page.HasMore = len(records) >= limit
	}
	return page, nil
}

// FetchAll pages one modality/UF combination.
func (c *ComprasGovScanner) FetchAll(ctx context.Context, q scanner.Query, opts scanner.FetchOptions) scanner.FetchResult {
	return scanner.Paginate(ctx, c.pageSize, opts, func(ctx context.Context, offset, limit int) (scanner.RawPage, error) {
		return c.FetchPage(ctx, q, offset, limit)
	}, nil)
}

// Normalize keys records on órgão, UASG, number and year; the PNCP control number
// is kept as external id only.
func (c *ComprasGovScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	rec := c.record(raw, pc)

	cnpj := rec.String("orgaoEntidadeCnpj")
	uasg := rec.String("unidadeOrgaoCodigoUnidade")
	number := rec.String("numeroCompra")
	year := rec.String("anoCompraPncp", "anoCompra")

	hash, err := normalize.IdentityHash(c.platform, "", cnpj, uasg, number, year)
	if err != nil {
		return domain.Notice{}, err
	}

	category := rec.String("modalidadeNome")
	if category == "" {
		category = modalityLabel(comprasGovModalities, rec.String("codigoModalidade", "modalidadeIdPncp"))
	}

	noticeNumber := number
	if number != "" && year != "" {
		noticeNumber = number + "/" + year
	}

	control := rec.String("numeroControlePNCP")
	object := rec.String("objetoCompra")
	n := domain.Notice{
		IdentityHash:     hash,
		SourcePlatform:   c.platform,
		ExternalID:       control,
		ProcessNumber:    rec.String("processo"),
		NoticeNumber:     noticeNumber,
		IssuingBodyName:  rec.String("orgaoEntidadeRazaoSocial"),
		IssuingBodyTaxID: cnpj,
		UnitName:         rec.String("unidadeOrgaoNomeUnidade"),
		RegionCode:       rec.String("unidadeOrgaoUfSigla"),
		Municipality:     rec.String("unidadeOrgaoMunicipioNome"),
		ObjectSummary:    object,
		ObjectFullText:   object,
		CategoryLabel:    category,
		PublishedAt:      rec.Time("dataPublicacaoPncp"),
		ProposalOpensAt:  rec.Time("dataAberturaPropostaPncp"),
		ProposalClosesAt: rec.Time("dataEncerramentoPropostaPncp"),
		EstimatedValue:   rec.Float("valorTotalEstimado"),
		SourceStatus:     rec.String("situacaoCompraNomePncp"),
	}
	if control != "" {
		n.OriginURL = pncpAppURL + control
	}

	srp, present := rec.Bool("srp")
	finalize(&n, srp, present, pc)
	return n, nil
}

// ComprasGovLegacyScanner reads pre-14.133 licitações from the legacy module.
type ComprasGovLegacyScanner struct {
	base
	baseURL string
}

// NewComprasGovLegacyScanner builds the legacy strategy. It ignores region and modality.
func NewComprasGovLegacyScanner(cfg ComprasGovConfig, client *httpclient.Client, logger *slog.Logger) *ComprasGovLegacyScanner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = comprasGovBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > comprasGovMaxPageSize {
		cfg.PageSize = 50
	}
	return &ComprasGovLegacyScanner{
		base:    newBase("comprasgov-legado", "comprasgov-legado", client, nil, cfg.PageSize, logger),
		baseURL: cfg.BaseURL,
	}
}

// Capabilities reports a single combination per window.
func (c *ComprasGovLegacyScanner) Capabilities() scanner.Capabilities { return scanner.Capabilities{} }

// FetchPage requests one legacy page.
func (c *ComprasGovLegacyScanner) FetchPage(ctx context.Context, q scanner.Query, offset, limit int) (scanner.RawPage, error) {
	limit = c.limit(limit)
	params := url.Values{
		"data_publicacao_inicial": {q.Window.Start.Format("2006-01-02")},
		"data_publicacao_final":   {q.Window.End.Format("2006-01-02")},
		"pagina":                  {strconv.Itoa(offset/limit + 1)},
		"tamanhoPagina":           {strconv.Itoa(limit)},
	}

	resp, err := c.do(ctx, httpclient.Request{Method: http.MethodGet, URL: c.baseURL + comprasGovLegacyPath, Query: params})
	if err != nil {
		return scanner.RawPage{}, err
	}
	if len(resp.Body) == 0 {
		return scanner.RawPage{}, nil
	}
	records, env, err := decodeRecords(resp, "resultado", "data")
	if err != nil {
		return scanner.RawPage{}, err
	}
	page := scanner.RawPage{Records: records, Total: intOf(env.Float("totalRegistros"))}
	if remaining := env.Float("paginasRestantes"); remaining != nil {
		page.HasMore = *remaining > 0
	} else {
		page.HasMore = len(records) >= limit
	}
	return page, nil
}

// FetchAll pages the legacy listing, capped at ten pages.
func (c *ComprasGovLegacyScanner) FetchAll(ctx context.Context, q scanner.Query, opts scanner.FetchOptions) scanner.FetchResult {
	if opts.MaxPages <= 0 || opts.MaxPages > comprasGovLegacyPages {
		opts.MaxPages = comprasGovLegacyPages
	}
	return scanner.Paginate(ctx, c.pageSize, opts, func(ctx context.Context, offset, limit int) (scanner.RawPage, error) {
		return c.FetchPage(ctx, q, offset, limit)
	}, nil)
}

// Normalize maps a legacy licitação; id_compra is the native id.
func (c *ComprasGovLegacyScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	rec := c.record(raw, pc)

	id := rec.String("id_compra")
	uasg := rec.String("uasg")
	number := rec.String("numero_aviso")
	hash, err := normalize.IdentityHash(c.platform, id, uasg, number, rec.String("numero_processo"))
	if err != nil {
		return domain.Notice{}, err
	}

	object := rec.String("objeto")
	n := domain.Notice{
		IdentityHash:    hash,
		SourcePlatform:  c.platform,
		ExternalID:      id,
		ProcessNumber:   rec.String("numero_processo"),
		NoticeNumber:    number,
		IssuingBodyName: rec.String("nome_orgao", "orgao"),
		UnitName:        rec.String("nome_uasg"),
		RegionCode:      rec.String("uf", "uf_uasg"),
		Municipality:    rec.String("municipio", "nome_municipio"),
		ObjectSummary:   object,
		ObjectFullText:  object,
		CategoryLabel:   rec.String("nome_modalidade"),
		PublishedAt:     rec.Time("data_publicacao"),
		ProposalOpensAt: rec.Time("data_abertura_proposta"),
		EstimatedValue:  rec.Float("valor_estimado_total"),
		SourceStatus:    rec.String("situacao_aviso"),
	}
	if n.IssuingBodyName == "" {
		n.IssuingBodyName = n.UnitName
	}
	if n.ProcessNumber == "" && uasg != "" && number != "" {
		n.ProcessNumber = uasg + "-" + number
	}

	finalize(&n, false, false, pc)
	return n, nil
}
