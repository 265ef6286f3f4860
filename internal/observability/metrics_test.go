package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alttext/internal/models"
)

func TestMetrics_ServedByHandler(t *testing.T) {
	ctx := context.Background()
	m, handler, err := NewMetrics(ctx)
	require.NoError(t, err)

	m.RecordBatchCreated(ctx)
	m.RecordPoll(ctx, models.JobStatusInProgress)
	m.RecordTerminal(ctx, models.JobStatusCompleted)
	m.RecordResultDownloaded(ctx, 512)
	m.RecordRowsMerged(ctx, 3, 1)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "batches_created")
	assert.Contains(t, text, "batch_polls")
	assert.Contains(t, text, `status="in_progress"`)
	assert.Contains(t, text, "rows_merged")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	_, _, err := NewMetrics(context.Background())
	require.NoError(t, err)
	_, _, err = NewMetrics(context.Background())
	assert.NoError(t, err)
}
