package parser

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/auth"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
	"EditaisScanner/internal/scanner"
)

const (
	bbmnetListingURL  = "https://bbmnet-cadastro-editais-backend-z7knklmt7a-rj.a.run.app/api/Editais/Participantes"
	bbmnetSiteURL     = "https://sistema.bbmnet.com.br"
	bbmnetNoticeURL   = bbmnetSiteURL + "/visaoeditais/editais/readonly/"
	bbmnetMaxResults  = 500
	bbmnetStopAfter   = 20
	bbmnetRecentDays  = 30
	bbmnetDefaultMode = "3"
)

var bbmnetOpenStatuses = []string{"publicado", "aberto", "em andamento"}

// BBMNETConfig configures the participant listing.
type BBMNETConfig struct {
	ListingURL    string
	PageSize      int
	MaxResults    int
	Regions       []string
	Modalities    []string
	StopThreshold int
	RecentDays    int
}

// BBMNETScanner reads the authenticated participant listing, newest first.
type BBMNETScanner struct {
	base
	cfg  BBMNETConfig
	caps scanner.Capabilities
	now  func() time.Time
}

// NewBBMNETScanner builds the strategy around an authenticated session.
func NewBBMNETScanner(cfg BBMNETConfig, client *httpclient.Client, session *auth.Manager, logger *slog.Logger) *BBMNETScanner {
	if cfg.ListingURL == "" {
		cfg.ListingURL = bbmnetListingURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = bbmnetMaxResults
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = []string{"RJ", "SP", "MG", "ES"}
	}
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []string{bbmnetDefaultMode}
	}
	if cfg.StopThreshold <= 0 {
		cfg.StopThreshold = bbmnetStopAfter
	}
	if cfg.RecentDays <= 0 {
		cfg.RecentDays = bbmnetRecentDays
	}
	return &BBMNETScanner{
		base: newBase("bbmnet", "bbmnet", client, session, cfg.PageSize, logger),
		cfg:  cfg,
		caps: scanner.Capabilities{
			PerRegion:         true,
			PerCategory:       true,
			DefaultRegions:    cfg.Regions,
			DefaultCategories: cfg.Modalities,
		},
		now: time.Now,
	}
}

// Capabilities reports that UF and modality are iterated client-side.
func (b *BBMNETScanner) Capabilities() scanner.Capabilities { return b.caps }

// FetchPage requests Take/Skip from the listing.
func (b *BBMNETScanner) FetchPage(ctx context.Context, q scanner.Query, offset, limit int) (scanner.RawPage, error) {
	limit = b.limit(limit)
	modality := q.Category
	if modality == "" {
		modality = bbmnetDefaultMode
	}
	params := url.Values{
		"Take":         {strconv.Itoa(limit)},
		"Skip":         {strconv.Itoa(offset)},
		"ModalidadeId": {modality},
	}
	if q.Region != "" {
		params.Set("Uf", q.Region)
	}

	resp, err := b.do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    b.cfg.ListingURL,
		Query:  params,
		Header: http.Header{
			"Origin":  {bbmnetSiteURL},
			"Referer": {bbmnetSiteURL + "/"},
		},
	})
	if err != nil {
		return scanner.RawPage{}, err
	}

	records, env, err := decodeRecords(resp, "editais", "data", "items")
	if err != nil {
		return scanner.RawPage{}, err
	}
	total := intOf(env.Float("count", "total"))
	page := scanner.RawPage{Records: records, Total: total}
	if total > 0 {
		page.HasMore = offset+len(records) < total
	} else {
		page.HasMore = len(records) >= limit
	}
	return page, nil
}

// FetchAll pages until the listing ends, the result cap is reached or a run of
// closed notices shows the open window is behind us.
func (b *BBMNETScanner) FetchAll(ctx context.Context, q scanner.Query, opts scanner.FetchOptions) scanner.FetchResult {
	maxPages := (b.cfg.MaxResults + b.pageSize - 1) / b.pageSize
	if opts.MaxPages <= 0 || opts.MaxPages > maxPages {
		opts.MaxPages = maxPages
	}
	now := b.now()
	stop := &scanner.EarlyStop{
		Threshold: b.cfg.StopThreshold,
		IsOpen: func(raw scanner.RawRecord) bool {
			return b.isOpen(normalize.NewRecord(raw, nil, nil), now)
		},
	}
	result := scanner.Paginate(ctx, b.pageSize, opts, func(ctx context.Context, offset, limit int) (scanner.RawPage, error) {
		return b.FetchPage(ctx, q, offset, limit)
	}, stop)
	if result.Stopped {
		b.logger.Info("early stop on closed notices", "region", q.Region, "pages", result.Pages, "kept", len(result.Records))
	}
	return result
}

// isOpen accepts a notice whose status is open, whose session or publication
// lies ahead, or which was published recently.
func (b *BBMNETScanner) isOpen(rec normalize.Record, now time.Time) bool {
	status := normalize.Fold(rec.String("editalStatus.name", "editalStatus.nome", "status"))
	for _, open := range bbmnetOpenStatuses {
		if status == open {
			return true
		}
	}
	for _, field := range []string{"dataRealizacao", "disputeStartDate", "inicioLances", "publishAt"} {
		if t := rec.Time(field); t != nil && !t.Before(now) {
			return true
		}
	}
	recent := now.AddDate(0, 0, -b.cfg.RecentDays)
	for _, field := range []string{"publishAt", "createdAt"} {
		if t := rec.Time(field); t != nil && !t.Before(recent) {
			return true
		}
	}
	return false
}

// Normalize maps an edital; uniqueId is the native id.
func (b *BBMNETScanner) Normalize(raw scanner.RawRecord, pc scanner.PlatformContext) (domain.Notice, error) {
	rec := b.record(raw, pc)

	id := rec.String("uniqueId", "id")
	taxID := rec.String("orgaoPromotor.documento")
	number := rec.String("numeroEdital")
	process := rec.String("numeroProcesso")

	hash, err := normalize.IdentityHash(b.platform, id, taxID, number, process)
	if err != nil {
		return domain.Notice{}, err
	}

	category := rec.String("modalidade.name", "modalidade.nome")
	if category == "" {
		category = modalityLabel(bbmnetModalities, rec.String("modalidadeId", "modalidade.id"))
	}

	purpose := rec.String("finalidadeLicitacao.name", "finalidadeLicitacao.nome")
	object := rec.String("objeto")
	n := domain.Notice{
		IdentityHash:     hash,
		SourcePlatform:   b.platform,
		ExternalID:       id,
		ProcessNumber:    process,
		NoticeNumber:     number,
		IssuingBodyName:  rec.String("orgaoPromotor.razaoSocial", "orgaoPromotor.nomeFantasia"),
		IssuingBodyTaxID: taxID,
		UnitName:         rec.String("unidadeCompradora.razaoSocial", "unidadeCompradora.nome"),
		RegionCode:       rec.String("uf", "orgaoPromotor.endereco.estado"),
		Municipality:     rec.String("orgaoPromotor.endereco.cidade", "cidade"),
		ObjectSummary:    object,
		ObjectFullText:   object,
		CategoryLabel:    category,
		JudgmentCriteria: rec.String("criterioJulgamento.name", "criterioJulgamento.nome"),
		PublishedAt:      rec.Time("publishAt", "createdAt"),
		ProposalOpensAt:  rec.Time("inicioRecebimentoPropostas"),
		ProposalClosesAt: rec.Time("terminoRecebimentoPropostas"),
		DisputeStartsAt:  rec.Time("inicioLances", "dataRealizacao"),
		EstimatedValue:   rec.Float("valorEstimado", "valorTotalEstimado"),
		SourceStatus:     rec.String("editalStatus.name", "editalStatus.nome"),
	}
	if id != "" {
		n.OriginURL = bbmnetNoticeURL + id
	}

	// finalidadeLicitacao names "Registro de Preços" for SRP notices.
	srp, present := rec.Bool("srp", "registroPreco")
	if !present && purpose != "" {
		srp, present = strings.Contains(normalize.Fold(purpose), "registro de preco"), true
	}
	finalize(&n, srp, present, pc)
	return n, nil
}
