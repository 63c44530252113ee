package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFlagsRequest(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	id := uuid.New()

	req, err := runFlags{
		start:    "2024-05-01",
		end:      "2024-05-03",
		regions:  []string{"rj", " sp"},
		sources:  []string{"pncp"},
		filters:  []string{id.String()},
		maxPages: 5,
		budget:   2 * time.Minute,
	}.request(loc)
	require.NoError(t, err)

	require.NotNil(t, req.Start)
	require.NotNil(t, req.End)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, loc), *req.Start)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, loc), *req.End)
	assert.Equal(t, []string{"RJ", "SP"}, req.Regions)
	assert.Equal(t, []uuid.UUID{id}, req.FilterIDs)
	assert.Equal(t, 5, req.MaxPages)
	assert.Equal(t, 2*time.Minute, req.TimeBudget)
}

func TestRunFlagsRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := runFlags{start: "01/05/2024", end: "2024-05-03"}.request(time.UTC)
	require.ErrorContains(t, err, "--start")

	_, err = runFlags{filters: []string{"not-a-uuid"}}.request(time.UTC)
	require.ErrorContains(t, err, "--filters")
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	t.Parallel()

	root := rootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["run"])
	assert.True(t, names["migrate"])
}
