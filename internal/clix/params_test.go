package clix

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alttext/internal/models"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("limit", 20, "")
	fs.Int("offset", 0, "")
	fs.String("status", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestParsePagination(t *testing.T) {
	p, err := ParsePagination(newFlags(t, "--limit", "0", "--offset", "-3"))
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 20, Offset: 0}, p)

	p, err = ParsePagination(newFlags(t, "--limit", "5", "--offset", "10"))
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 5, Offset: 10}, p)
}

func TestParseStatusFilter(t *testing.T) {
	filter, err := ParseStatusFilter(newFlags(t))
	require.NoError(t, err)
	assert.Nil(t, filter)

	filter, err = ParseStatusFilter(newFlags(t, "--status", "running, completed,,done"))
	require.NoError(t, err)
	assert.Equal(t, map[models.JobStatus]bool{
		models.JobStatusInProgress: true,
		models.JobStatusCompleted:  true,
	}, filter)

	_, err = ParseStatusFilter(newFlags(t, "--status", "paused"))
	assert.ErrorIs(t, err, models.ErrUnknownStatus)
}
