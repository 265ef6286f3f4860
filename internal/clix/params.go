package clix

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"alttext/internal/models"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// ParseStatusFilter reads the comma separated --status flag. Legacy status
// names are accepted and mapped to their canonical form.
func ParseStatusFilter(flags *pflag.FlagSet) (map[models.JobStatus]bool, error) {
	raw, _ := flags.GetString("status")
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	filter := make(map[models.JobStatus]bool)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		status, err := models.ParseJobStatus(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid --status value: %w", err)
		}
		filter[status] = true
	}
	return filter, nil
}
