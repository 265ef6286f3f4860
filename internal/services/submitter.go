package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
)

// Submitter uploads batch input files and builds the initial task list.
type Submitter struct {
	provider BatchAPIProvider
}

// NewSubmitter creates a submitter backed by provider.
func NewSubmitter(provider BatchAPIProvider) *Submitter {
	return &Submitter{provider: provider}
}

// Submit uploads every file and returns one queued task per upload, in the
// order of paths. No batch job is created here.
func (s *Submitter) Submit(ctx context.Context, paths []string) (models.TaskList, error) {
	list := models.TaskList{Tasks: make([]models.Task, 0, len(paths))}
	log.Infof("Uploading %d files to OpenAI for batch processing", len(paths))

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return list, fmt.Errorf("failed to read batch file '%s': %w", path, err)
		}
		fileID, err := s.provider.UploadFile(ctx, filepath.Base(path), content)
		if err != nil {
			return list, fmt.Errorf("upload batch file '%s': %w", path, err)
		}
		list.Tasks = append(list.Tasks, models.Task{
			InputFileID: fileID,
			SourcePath:  path,
			Status:      models.JobStatusQueued,
		})
		log.WithFields(log.Fields{"path": path, "file_id": fileID}).Info("File uploaded")
	}
	return list, nil
}
