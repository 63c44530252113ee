package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EditaisScanner/internal/config"
)

func TestScheduledRuns(t *testing.T) {
	t.Parallel()

	runs := ScheduledRuns([]config.JobConfig{
		{Name: "pncp-frequent", Spec: "0 8-18/2 * * *", Sources: []string{"pncp"}, Days: 3},
		{Name: "sudeste", Spec: "0 6 * * *", Days: 1, Regions: []string{" rj", "sp"}, Categories: []string{"pregão"}},
	})
	require.Len(t, runs, 2)

	assert.Equal(t, "pncp-frequent", runs[0].Name)
	assert.Equal(t, "0 8-18/2 * * *", runs[0].Spec)
	assert.Equal(t, 3, runs[0].Request.Days)
	assert.Equal(t, []string{"pncp"}, runs[0].Request.Sources)
	assert.Nil(t, runs[0].Request.Regions)

	assert.Equal(t, []string{"RJ", "SP"}, runs[1].Request.Regions)
	assert.Equal(t, []string{"pregão"}, runs[1].Request.Categories)
	assert.Empty(t, runs[1].Request.Sources)
}
