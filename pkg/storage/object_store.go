// Package storage mirrors task output files into durable object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
)

type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error
}

// ObjectKey is the key an output file of a workflow is stored under.
func ObjectKey(workflowID string, f pipeline.OutputFile) string {
	if workflowID == "" {
		workflowID = "_"
	}
	return path.Join(workflowID, f.Filename)
}

// MirrorOutputFiles copies every output file of a task result into store. A nil logger uses [slog.Default].
func MirrorOutputFiles(ctx context.Context, logger *slog.Logger, store ObjectStore, res *pipeline.TaskResult) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, f := range res.OutputFiles {
		if err := mirrorFile(ctx, store, ObjectKey(res.WorkflowID, f), f.Path); err != nil {
			return err
		}
		logger.Debug("mirrored output file", "workflow_id", res.WorkflowID, "file", f.DisplayName, "path", f.Path)
	}
	return nil
}

func mirrorFile(ctx context.Context, store ObjectStore, key, src string) error {
	fh, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", src, err)
	}
	defer fh.Close()

	if err = store.PutObject(ctx, key, fh); err != nil {
		return fmt.Errorf("failed to upload %s: %w", src, err)
	}
	return nil
}
