package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
)

// listPageSize is the page size used when walking the batch listing.
const listPageSize = 100

// batchClient is the subset of *openai.Client the provider uses.
type batchClient interface {
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
	CreateBatch(ctx context.Context, request openai.CreateBatchRequest) (openai.BatchResponse, error)
	ListBatch(ctx context.Context, after *string, limit *int) (openai.ListBatchResponse, error)
	RetrieveBatch(ctx context.Context, batchID string) (openai.BatchResponse, error)
	CancelBatch(ctx context.Context, batchID string) (openai.BatchResponse, error)
	GetFileContent(ctx context.Context, fileID string) (openai.RawResponse, error)
}

// OpenAIBatchProvider implements the BatchAPIProvider interface using the OpenAI client.
type OpenAIBatchProvider struct {
	client batchClient
}

// NewOpenAIBatchProvider creates a new provider for OpenAI Batch API operations.
// baseURL is optional and points the client at an OpenAI-compatible endpoint.
func NewOpenAIBatchProvider(apiKey, baseURL string) (*OpenAIBatchProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		log.Warn("OpenAI API key not provided. OpenAI Batch API provider will be disabled.")
		return &OpenAIBatchProvider{client: nil}, nil
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	log.Info("OpenAI Batch API provider initialized.")
	return &OpenAIBatchProvider{client: openai.NewClientWithConfig(cfg)}, nil
}

// newOpenAIBatchProviderWithClient wraps an existing client; used by tests.
func newOpenAIBatchProviderWithClient(client batchClient) *OpenAIBatchProvider {
	return &OpenAIBatchProvider{client: client}
}

// Enabled reports whether an API key was configured.
func (p *OpenAIBatchProvider) Enabled() bool { return p.client != nil }

// UploadFile uploads a batch input file and returns its file id.
func (p *OpenAIBatchProvider) UploadFile(ctx context.Context, fileName string, fileContent []byte) (string, error) {
	if p.client == nil {
		return "", models.ErrProviderDisabled
	}

	file, err := p.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    fileName,
		Bytes:   fileContent,
		Purpose: openai.PurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create OpenAI file '%s': %w", fileName, err)
	}
	return file.ID, nil
}

// CreateBatch creates a new batch job on OpenAI.
func (p *OpenAIBatchProvider) CreateBatch(ctx context.Context, inputFileID, endpoint, completionWindow string) (openai.Batch, error) {
	if p.client == nil {
		return openai.Batch{}, models.ErrProviderDisabled
	}

	req := openai.CreateBatchRequest{
		InputFileID:      inputFileID,
		Endpoint:         openai.BatchEndpoint(endpoint),
		CompletionWindow: completionWindow,
	}
	resp, err := p.client.CreateBatch(ctx, req)
	if err != nil {
		return openai.Batch{}, fmt.Errorf("failed to create OpenAI batch job for file %s: %w", inputFileID, err)
	}
	return resp.Batch, nil
}

// ListBatches walks every page of the batch listing, newest first.
func (p *OpenAIBatchProvider) ListBatches(ctx context.Context) ([]openai.Batch, error) {
	if p.client == nil {
		return nil, models.ErrProviderDisabled
	}

	var (
		all   []openai.Batch
		after *string
		limit = listPageSize
	)
	for {
		page, err := p.client.ListBatch(ctx, after, &limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list OpenAI batch jobs: %w", err)
		}
		all = append(all, page.Data...)
		if !page.HasMore || page.LastID == "" {
			return all, nil
		}
		last := page.LastID
		after = &last
	}
}

// RetrieveBatch retrieves the status and details of an existing batch job.
func (p *OpenAIBatchProvider) RetrieveBatch(ctx context.Context, batchID string) (openai.Batch, error) {
	if p.client == nil {
		return openai.Batch{}, models.ErrProviderDisabled
	}

	resp, err := p.client.RetrieveBatch(ctx, batchID)
	if err != nil {
		return openai.Batch{}, fmt.Errorf("failed to retrieve OpenAI batch job %s: %w", batchID, err)
	}
	if resp.Status == string(models.JobStatusCompleted) {
		log.WithFields(log.Fields{
			"batch_id":  batchID,
			"total":     resp.RequestCounts.Total,
			"completed": resp.RequestCounts.Completed,
			"failed":    resp.RequestCounts.Failed,
		}).Debug("OpenAI batch job completed")
	}
	return resp.Batch, nil
}

// CancelBatch requests cancellation of a batch job.
func (p *OpenAIBatchProvider) CancelBatch(ctx context.Context, batchID string) (openai.Batch, error) {
	if p.client == nil {
		return openai.Batch{}, models.ErrProviderDisabled
	}

	resp, err := p.client.CancelBatch(ctx, batchID)
	if err != nil {
		return openai.Batch{}, fmt.Errorf("failed to cancel OpenAI batch job %s: %w", batchID, err)
	}
	return resp.Batch, nil
}

// GetFileContent retrieves the content of a file generated by a batch job.
func (p *OpenAIBatchProvider) GetFileContent(ctx context.Context, fileID string) ([]byte, error) {
	if p.client == nil {
		return nil, models.ErrProviderDisabled
	}

	reader, err := p.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenAI file content for file %s: %w", fileID, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI file content for file %s: %w", fileID, err)
	}
	return content, nil
}

// Ensure OpenAIBatchProvider implements the interface.
var _ BatchAPIProvider = (*OpenAIBatchProvider)(nil)
