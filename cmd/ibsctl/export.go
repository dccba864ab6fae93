package main

import (
	"context"
	"strings"
	"time"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/service"
)

type auditExporter interface {
	Export(ctx context.Context, filter models.AuditFilter, format models.ExportFormat) (*service.ExportFile, error)
}

type exportSaver interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// exporter writes audit exports to a local directory and prunes stale ones.
type exporter struct {
	audit     auditExporter
	dir       exportSaver
	retention time.Duration
}

func (e *exporter) run(ctx context.Context, filter models.AuditFilter, format string) (string, []string, error) {
	file, err := e.audit.Export(ctx, filter, models.ExportFormat(strings.ToLower(format)))
	if err != nil {
		return "", nil, err
	}
	path, err := e.dir.Save(file.Filename, file.Body)
	if err != nil {
		return "", nil, err
	}
	var pruned []string
	if e.retention > 0 {
		pruned, err = e.dir.CleanupOlderThan(e.retention)
		if err != nil {
			return path, pruned, err
		}
	}
	return path, pruned, nil
}
