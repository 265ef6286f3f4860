package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alttext/internal/models"
)

type mockBatchClient struct{ mock.Mock }

func (m *mockBatchClient) CreateFileBytes(ctx context.Context, req openai.FileBytesRequest) (openai.File, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.File), args.Error(1)
}

func (m *mockBatchClient) CreateBatch(ctx context.Context, req openai.CreateBatchRequest) (openai.BatchResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.BatchResponse), args.Error(1)
}

func (m *mockBatchClient) ListBatch(ctx context.Context, after *string, limit *int) (openai.ListBatchResponse, error) {
	var a string
	if after != nil {
		a = *after
	}
	args := m.Called(ctx, a, *limit)
	return args.Get(0).(openai.ListBatchResponse), args.Error(1)
}

func (m *mockBatchClient) RetrieveBatch(ctx context.Context, batchID string) (openai.BatchResponse, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(openai.BatchResponse), args.Error(1)
}

func (m *mockBatchClient) CancelBatch(ctx context.Context, batchID string) (openai.BatchResponse, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(openai.BatchResponse), args.Error(1)
}

func (m *mockBatchClient) GetFileContent(ctx context.Context, fileID string) (openai.RawResponse, error) {
	args := m.Called(ctx, fileID)
	return args.Get(0).(openai.RawResponse), args.Error(1)
}

func TestOpenAIBatchProvider_Disabled(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	p, err := NewOpenAIBatchProvider("", "")
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	ctx := context.Background()
	_, err = p.UploadFile(ctx, "batch_0.jsonl", []byte("{}"))
	assert.ErrorIs(t, err, models.ErrProviderDisabled)
	_, err = p.CreateBatch(ctx, "file-1", DefaultEndpoint, DefaultCompletionWindow)
	assert.ErrorIs(t, err, models.ErrProviderDisabled)
	_, err = p.ListBatches(ctx)
	assert.ErrorIs(t, err, models.ErrProviderDisabled)
	_, err = p.CancelBatch(ctx, "batch_1")
	assert.ErrorIs(t, err, models.ErrProviderDisabled)
}

func TestOpenAIBatchProvider_ListBatchesWalksAllPages(t *testing.T) {
	client := new(mockBatchClient)
	client.On("ListBatch", mock.Anything, "", listPageSize).Return(openai.ListBatchResponse{
		Data:    []openai.Batch{{ID: "batch_3"}, {ID: "batch_2"}},
		HasMore: true,
		LastID:  "batch_2",
	}, nil).Once()
	client.On("ListBatch", mock.Anything, "batch_2", listPageSize).Return(openai.ListBatchResponse{
		Data: []openai.Batch{{ID: "batch_1"}},
	}, nil).Once()

	batches, err := newOpenAIBatchProviderWithClient(client).ListBatches(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"batch_3", "batch_2", "batch_1"}, ids)
	client.AssertExpectations(t)
}

func TestOpenAIBatchProvider_CreateBatch(t *testing.T) {
	client := new(mockBatchClient)
	want := openai.CreateBatchRequest{
		InputFileID:      "file-1",
		Endpoint:         openai.BatchEndpoint(DefaultEndpoint),
		CompletionWindow: DefaultCompletionWindow,
	}
	client.On("CreateBatch", mock.Anything, want).
		Return(openai.BatchResponse{Batch: openai.Batch{ID: "batch_1", InputFileID: "file-1", Status: "validating"}}, nil).Once()

	batch, err := newOpenAIBatchProviderWithClient(client).CreateBatch(context.Background(), "file-1", DefaultEndpoint, DefaultCompletionWindow)
	require.NoError(t, err)
	assert.Equal(t, "batch_1", batch.ID)
	client.AssertExpectations(t)
}

func TestOpenAIBatchProvider_UploadFileUsesBatchPurpose(t *testing.T) {
	client := new(mockBatchClient)
	client.On("CreateFileBytes", mock.Anything, mock.MatchedBy(func(req openai.FileBytesRequest) bool {
		return req.Name == "batch_0.jsonl" && req.Purpose == openai.PurposeBatch && string(req.Bytes) == "line\n"
	})).Return(openai.File{ID: "file-abc"}, nil).Once()

	id, err := newOpenAIBatchProviderWithClient(client).UploadFile(context.Background(), "batch_0.jsonl", []byte("line\n"))
	require.NoError(t, err)
	assert.Equal(t, "file-abc", id)
	client.AssertExpectations(t)
}

func TestOpenAIBatchProvider_GetFileContent(t *testing.T) {
	client := new(mockBatchClient)
	client.On("GetFileContent", mock.Anything, "out-1").
		Return(openai.RawResponse{ReadCloser: io.NopCloser(strings.NewReader("result"))}, nil).Once()
	client.On("GetFileContent", mock.Anything, "out-2").
		Return(openai.RawResponse{}, errors.New("not found")).Once()

	p := newOpenAIBatchProviderWithClient(client)
	content, err := p.GetFileContent(context.Background(), "out-1")
	require.NoError(t, err)
	assert.Equal(t, "result", string(content))

	_, err = p.GetFileContent(context.Background(), "out-2")
	assert.ErrorContains(t, err, "out-2")
}
