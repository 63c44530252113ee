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
	pncpBaseURL     = "https://pncp.gov.br/api/consulta/v1"
	pncpAppURL      = "https://pncp.gov.br/app/editais/"
	pncpMaxPageSize = 500
)

// DefaultModalities are the modality codes iterated when none are requested.
var DefaultModalities = []string{"4", "6", "7", "8", "12"}

// PNCPConfig configures the national open-data API.
type PNCPConfig struct {
	BaseURL    string
	PageSize   int
	Categories []string
	Regions    []string
}

// PNCPScanner reads /contratacoes/publicacao, one modality and UF at a time.
type PNCPScanner struct {
	base
	baseURL string
	caps    scanner.Capabilities
}

// NewPNCPScanner wires the open-data client; no session is needed.
func NewPNCPScanner(cfg PNCPConfig, client *httpclient.Client, logger *slog.Logger) *PNCPScanner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = pncpBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > pncpMaxPageSize {
		cfg.PageSize = 50
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultModalities
	}
	return &PNCPScanner{
		base:    newBase("pncp", "pncp", client, nil, cfg.PageSize, logger),
		baseURL: cfg.BaseURL,
		caps: scanner.Capabilities{
			PerRegion:         true,
			PerCategory:       true,
			DefaultRegions:    cfg.Regions,
			DefaultCategories: cfg.Categories,
		},
	}
}

// Capabilities reports that modality is mandatory and UF optional.
func (p *PNCPScanner) Capabilities() scanner.Capabilities { return p.caps }

// FetchPage requests page offset/limit+1 of the publication listing.
func (p *PNCPScanner) FetchPage(ctx context.Context, q scanner.Query, offset, limit int) (scanner.RawPage, error) {
	limit = p.limit(limit)
	if q.Category == "" {
		return scanner.RawPage{}, fmt.Errorf("pncp: modality is required")
	}

	params := url.Values{
		"dataInicial":                 {q.Window.Start.Format("20060102")},
		"dataFinal":                   {q.Window.End.Format("20060102")},
		"codigoModalidadeContratacao": {q.Category},
		"pagina":                      {strconv.Itoa(offset/limit + 1)},
		"tamanhoPagina":               {strconv.Itoa(limit)},
	}
	if q.Region != "" {
		params.Set("uf", q.Region)
	}

	resp, err := p.do(ctx, httpclient.Request{Method: http.MethodGet, URL: p.baseURL + "/contratacoes/publicacao", Query: params})
	if httpclient.HasStatus(err, http.StatusUnprocessableEntity) {
		p.logger.Debug("no data for combination", "region", q.Region, "modality", q.Category)
		return scanner.RawPage{}, nil
	}
	if err != nil {
		return scanner.RawPage{}, err
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return scanner.RawPage{}, nil
	}

	records, env, err := decodeRecords(resp, "data", "contratacoes")
	if err != nil {
		return scanner.RawPage{}, err
	}

	page := scanner.RawPage{Records: records, Total: intOf(env.Float("totalRegistros"))}
	remaining := env.Float("paginasRestantes")
	totalPages := env.Float("totalPaginas")
	switch {
	case remaining != nil:
		page.HasMore = *remaining > 0
	case totalPages != nil:
		page.HasMore = offset/limit+1 < int(*totalPages)
	default:
		page.HasMore = len(records) >= limit
	}
	return page, nil
}

// FetchAll pages the listing for one combination.
func (p *PNCPScanner) FetchAll(ctx context.Context, q scanner.Query, opts scanner.FetchOptions) scanner.FetchResult {
	return scanner.Paginate(ctx, p.pageSize, opts, func(ctx context.Context, offset, limit int) (scanner.RawPage, error) {
		return p.FetchPage(ctx, q, offset, limit)
	}, nil)
}

// Normalize maps a contratação onto the canonical notice.
func (p *PNCPScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	rec := p.record(raw, pc)

	control := rec.String("numeroControlePNCP")
	cnpj := rec.String("orgaoEntidade.cnpj", "orgaoEntidadeCnpj")
	unit := rec.String("unidadeOrgao.codigoUnidade", "unidadeOrgaoCodigoUnidade")
	number := rec.String("numeroCompra")
	year := rec.String("anoCompra")

	hash, err := normalize.IdentityHash(p.platform, control, cnpj, unit, number, year)
	if err != nil {
		return domain.Notice{}, err
	}

	category := rec.String("modalidadeNome")
	if category == "" {
		category = modalityLabel(pncpModalities, rec.String("modalidadeId", "codigoModalidadeContratacao"))
	}
	if category == "" {
		category = modalityLabel(pncpModalities, pc.Query.Category)
	}

	object := rec.String("objetoCompra")
	n := domain.Notice{
		IdentityHash:     hash,
		SourcePlatform:   p.platform,
		ExternalID:       control,
		ProcessNumber:    rec.String("processo"),
		NoticeNumber:     rec.String("numeroCompra"),
		IssuingBodyName:  rec.String("orgaoEntidade.razaoSocial", "orgaoEntidadeRazaoSocial"),
		IssuingBodyTaxID: cnpj,
		UnitName:         rec.String("unidadeOrgao.nomeUnidade", "unidadeOrgaoNomeUnidade"),
		RegionCode:       rec.String("unidadeOrgao.ufSigla", "unidadeOrgaoUfSigla", "uf"),
		Municipality:     rec.String("unidadeOrgao.municipioNome", "municipioNome", "unidadeOrgaoMunicipioNome"),
		ObjectSummary:    object,
		ObjectFullText:   object,
		CategoryLabel:    category,
		JudgmentCriteria: rec.String("criterioJulgamentoNome"),
		PublishedAt:      rec.Time("dataPublicacaoPncp", "dataInclusao"),
		ProposalOpensAt:  rec.Time("dataAberturaProposta"),
		ProposalClosesAt: rec.Time("dataEncerramentoProposta"),
		EstimatedValue:   rec.Float("valorTotalEstimado"),
		SourceSystemURL:  rec.String("linkSistemaOrigem"),
		SourceStatus:     rec.String("situacaoCompraNome"),
	}
	if control != "" {
		n.OriginURL = pncpAppURL + control
	}

	srp, present := rec.Bool("srp")
	finalize(&n, srp, present, pc)
	return n, nil
}
