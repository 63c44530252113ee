package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EditaisScanner/internal/domain"
)

func TestIdentityHashStableAndPlatformScoped(t *testing.T) {
	t.Parallel()

	a, err := IdentityHash("bbmnet", "9912")
	require.NoError(t, err)
	b, err := IdentityHash("BBMNET ", " 9912")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other, err := IdentityHash("licitardigital", "9912")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestIdentityHashCompositeFallback(t *testing.T) {
	t.Parallel()

	withComposite, err := IdentityHash("comprasgov", "", "00394460000141", "160001", "90001", "2025")
	require.NoError(t, err)

	shifted, err := IdentityHash("comprasgov", "", "00394460000141", "16000", "190001", "2025")
	require.NoError(t, err)
	assert.NotEqual(t, withComposite, shifted)

	_, err = IdentityHash("comprasgov", "", "", " ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedRecord))
}

func TestMunicipalityFromBody(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Prefeitura Municipal de Exemplo":          "Exemplo",
		"PREFEITURA MUNICIPAL DE GUARAPARI - ES":    "GUARAPARI",
		"Câmara Municipal de Macaé":                "Macaé",
		"Fundo Municipal de Saúde/RJ":              "Saúde",
		"Município de Embu-Guaçu":                  "Embu-Guaçu",
		"Secretaria de Saude do Municipio de Nova": "Nova",
		"Ministério da Saúde":                      "",
		"Tribunal de Justiça de Minas":             "",
		"":                                         "",
	}
	for body, want := range cases {
		assert.Equal(t, want, MunicipalityFromBody(body), body)
	}
}

func TestRegionFromText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MG", RegionFromText("Prefeitura Municipal de Minduri/MG"))
	assert.Equal(t, "ES", RegionFromText("", "Prefeitura de Serra - ES"))
	assert.Equal(t, "", RegionFromText("Processo 10/XX."))
	assert.Equal(t, "", RegionFromText("nothing here"))
}

func TestParseTimeFormats(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("BRT", -3*3600)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T10:00:00Z", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-03-01T10:00:00-03:00", time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)},
		{"2025-03-01T10:00:00+0000", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-03-01T10:00:00.123", time.Date(2025, 3, 1, 13, 0, 0, 123000000, time.UTC)},
		{"2025-03-01 10:00:00", time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)},
		{"01/03/2025 10:00", time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)},
		{"01/03/2025", time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)},
		{"20250301", time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := ParseTime(tc.in, loc)
		require.True(t, ok, tc.in)
		assert.True(t, tc.want.Equal(got), "%s: got %v", tc.in, got)
	}

	_, ok := ParseTime("amanhã", loc)
	assert.False(t, ok)
	_, ok = ParseTime("", loc)
	assert.False(t, ok)
}

func TestParseDecimal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{"R$ 1.234,56", 1234.56, true},
		{"1.234.567", 1234567, true},
		{"1234.56", 1234.56, true},
		{"12,5", 12.5, true},
		{float64(99.9), 99.9, true},
		{"n/d", 0, false},
		{nil, 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseDecimal(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 0.0001, "%v", tc.in)
		}
	}
}

func TestRecordCandidates(t *testing.T) {
	t.Parallel()

	rec := NewRecord(map[string]any{
		"orgao":         map[string]any{"razaoSocial": "", "nomeFantasia": "Prefeitura de Teste"},
		"valor":         "R$ 10,00",
		"srp":           "true",
		"publishAt":     "2025-03-01T10:00:00Z",
		"badDate":       "ontem",
		"id":            float64(9912),
		"emptyList":     []any{},
		"nested":        map[string]any{"list": []any{map[string]any{"name": "x"}}},
		"invalid-value": "ignored",
	}, time.UTC, nil)

	assert.Equal(t, "Prefeitura de Teste", rec.String("orgao.razaoSocial", "orgao.nomeFantasia"))
	assert.Equal(t, "9912", rec.String("uniqueId", "id"))
	assert.Equal(t, "x", rec.String("nested.list[0].name"))
	assert.Equal(t, "", rec.String("missing", "emptyList"))

	value := rec.Float("valorEstimado", "valor")
	require.NotNil(t, value)
	assert.InDelta(t, 10.0, *value, 0.001)

	srp, present := rec.Bool("srp")
	assert.True(t, present)
	assert.True(t, srp)

	assert.Nil(t, rec.Time("badDate"))
	ts := rec.Time("badDate", "publishAt")
	require.NotNil(t, ts)
	assert.Equal(t, 2025, ts.Year())

	assert.Equal(t, "", rec.String("[[["))
}

func TestFoldAndPriceRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "registro de preco para aquisicao", Fold("  REGISTRO  de Preço para Aquisição "))
	assert.True(t, ContainsFolded("Pregão Eletrônico", "pregao"))
	assert.False(t, ContainsFolded("Pregão", ""))

	assert.True(t, PriceRegistry(false, false, "Registro de Preços para material"))
	assert.True(t, PriceRegistry(true, true, "qualquer"))
	assert.False(t, PriceRegistry(false, true, "Aquisição de material de limpeza"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Aquisição", Truncate("Aquisição de material", 9))
	assert.Equal(t, "curto", Truncate("curto", 500))
	assert.Equal(t, "sem limite", Truncate("sem limite", 0))
}
