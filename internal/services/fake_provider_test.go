package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// fakeProvider is an in-memory Batch API. Each retrieve advances a batch one
// step along its script; the last step repeats.
type fakeProvider struct {
	mu sync.Mutex

	uploads  map[string][]byte // file id -> content
	batches  map[string]*fakeBatch
	listing  []openai.Batch    // extra batches returned by ListBatches, newest first
	results  map[string][]byte // input file id -> result file content
	script   []string
	creates  map[string]int // input file id -> create calls
	retrieve int
	cancels  []string

	listErr     error
	retrieveErr error
	createErr   error
}

type fakeBatch struct {
	batch openai.Batch
	steps []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		uploads: make(map[string][]byte),
		batches: make(map[string]*fakeBatch),
		results: make(map[string][]byte),
		creates: make(map[string]int),
		script:  []string{"in_progress", "finalizing", "completed"},
	}
}

func outputID(inputFileID string) string { return "out-" + inputFileID }

func (f *fakeProvider) UploadFile(_ context.Context, fileName string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("file-%d", len(f.uploads)+1)
	f.uploads[id] = content
	return id, nil
}

func (f *fakeProvider) CreateBatch(_ context.Context, inputFileID, endpoint, completionWindow string) (openai.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return openai.Batch{}, f.createErr
	}
	f.creates[inputFileID]++
	id := fmt.Sprintf("batch_%s_%d", inputFileID, f.creates[inputFileID])
	fb := &fakeBatch{
		batch: openai.Batch{ID: id, InputFileID: inputFileID, Status: "validating"},
		steps: append([]string(nil), f.script...),
	}
	f.batches[id] = fb
	return fb.batch, nil
}

// addBatch registers a remote batch that already exists before the run.
func (f *fakeProvider) addBatch(id, inputFileID, status string, steps ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb := &fakeBatch{batch: openai.Batch{ID: id, InputFileID: inputFileID}, steps: steps}
	setFakeStatus(&fb.batch, status)
	f.batches[id] = fb
	f.listing = append(f.listing, fb.batch)
}

func setFakeStatus(b *openai.Batch, status string) {
	b.Status = status
	b.OutputFileID = nil
	if status == "completed" {
		out := outputID(b.InputFileID)
		b.OutputFileID = &out
	}
}

func (f *fakeProvider) ListBatches(context.Context) ([]openai.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]openai.Batch(nil), f.listing...), nil
}

func (f *fakeProvider) RetrieveBatch(_ context.Context, batchID string) (openai.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieve++
	if f.retrieveErr != nil {
		return openai.Batch{}, f.retrieveErr
	}
	fb, ok := f.batches[batchID]
	if !ok {
		return openai.Batch{}, fmt.Errorf("batch %s not found", batchID)
	}
	if len(fb.steps) > 0 {
		setFakeStatus(&fb.batch, fb.steps[0])
		if len(fb.steps) > 1 {
			fb.steps = fb.steps[1:]
		}
	}
	return fb.batch, nil
}

func (f *fakeProvider) CancelBatch(_ context.Context, batchID string) (openai.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fb, ok := f.batches[batchID]
	if !ok {
		return openai.Batch{}, fmt.Errorf("batch %s not found", batchID)
	}
	f.cancels = append(f.cancels, batchID)
	setFakeStatus(&fb.batch, "cancelling")
	fb.steps = []string{"cancelled"}
	return fb.batch, nil
}

func (f *fakeProvider) GetFileContent(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for input, content := range f.results {
		if outputID(input) == fileID {
			return content, nil
		}
	}
	return nil, fmt.Errorf("file %s not found", fileID)
}

func (f *fakeProvider) createCount(inputFileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates[inputFileID]
}

func (f *fakeProvider) totalCreates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.creates {
		n += c
	}
	return n
}

func (f *fakeProvider) retrieveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieve
}

var _ BatchAPIProvider = (*fakeProvider)(nil)
