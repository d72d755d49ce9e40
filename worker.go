package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/storage"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/task"
)

// taskRequest is one task invocation as handed to the worker. An empty Task runs the entropy task.
type taskRequest struct {
	Task string `json:"task,omitempty"`
	task.Request
}

type outcome struct {
	WorkflowID string `json:"workflow_id"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`

	err error
}

type worker struct {
	cfg      *workerConfig
	registry *task.Registry
	store    storage.ObjectStore
	logger   *slog.Logger
}

func newObjectStore(ctx context.Context, cfg *workerConfig, logger *slog.Logger) (storage.ObjectStore, error) {
	switch {
	case cfg.S3.Bucket != "":
		return storage.NewS3ObjectStore(ctx, storage.S3ClientConfig{
			Endpoint:    cfg.S3.Endpoint,
			AccessKeyID: cfg.S3.AccessKey,
			SecretKey:   cfg.S3.SecretKey,
			Region:      cfg.S3.Region,
			Bucket:      cfg.S3.Bucket,
			Prefix:      cfg.S3.Prefix,
		}, logger)
	case cfg.MirrorDir != "":
		return storage.NewLocalObjectStore(cfg.MirrorDir)
	default:
		return nil, nil
	}
}

func newWorker(ctx context.Context, cfg *workerConfig, logger *slog.Logger) (*worker, error) {
	w := &worker{cfg: cfg, registry: task.NewRegistry(), logger: logger}

	if err := task.NewEntropyTask(pipeline.LocalOutputFactory{}, logger).
		WithDelimiter(cfg.Delimiter).
		Register(w.registry); err != nil {
		return nil, err
	}

	var err error
	if w.store, err = newObjectStore(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to set up output mirror: %w", err)
	}

	return w, nil
}

func (w *worker) withDefaults(req taskRequest) taskRequest {
	if req.Task == "" {
		req.Task = task.EntropyTaskName
	}
	if req.OutputPath == "" {
		req.OutputPath = w.cfg.OutputPath
	}
	if _, ok := req.TaskConfig[task.ThresholdOption]; !ok && w.cfg.Threshold != "" {
		taskConfig := make(map[string]any, len(req.TaskConfig)+1)
		maps.Copy(taskConfig, req.TaskConfig)
		taskConfig[task.ThresholdOption] = w.cfg.Threshold
		req.TaskConfig = taskConfig
	}
	return req
}

func (w *worker) execute(ctx context.Context, req taskRequest) outcome {
	req = w.withDefaults(req)
	out := outcome{WorkflowID: req.WorkflowID}

	res, err := w.registry.Dispatch(ctx, req.Task, req.Request)
	if err != nil {
		w.logger.Error("task failed", "task", req.Task, "workflow_id", req.WorkflowID, "error", err)
		out.err = fmt.Errorf("task %s (workflow %q): %w", req.Task, req.WorkflowID, err)
		out.Error = out.err.Error()
		return out
	}
	out.Result = res

	if w.store != nil || flagDebug {
		decoded, derr := pipeline.DecodeTaskResult(res)
		if derr != nil {
			out.err = derr
			out.Error = derr.Error()
			return out
		}
		if flagDebug {
			dumpResult(decoded)
		}
		if w.store != nil {
			if merr := storage.MirrorOutputFiles(ctx, w.logger, w.store, decoded); merr != nil {
				w.logger.Error("failed to mirror output files", "workflow_id", req.WorkflowID, "error", merr)
				out.err = merr
				out.Error = merr.Error()
			}
		}
	}

	return out
}

// runAll executes independent requests on a worker pool. Outcomes keep the order of reqs.
func (w *worker) runAll(ctx context.Context, reqs []taskRequest) ([]outcome, error) {
	outcomes := make([]outcome, len(reqs))

	workers, err := ants.NewPool(w.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer workers.Release()

	wg := new(sync.WaitGroup)
	for i, req := range reqs {
		i, req := i, req
		wg.Add(1)
		if serr := workers.Submit(func() {
			defer wg.Done()
			outcomes[i] = w.execute(ctx, req)
		}); serr != nil {
			wg.Done()
			outcomes[i] = outcome{WorkflowID: req.WorkflowID, Error: serr.Error(), err: serr}
		}
	}
	wg.Wait()

	errs := make([]error, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err)
		}
	}

	return outcomes, errors.Join(errs...)
}

// decodeRequests reads either a single request object or an array of requests.
func decodeRequests(r io.Reader) ([]taskRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var reqs []taskRequest
	if err = json.Unmarshal(data, &reqs); err == nil {
		return reqs, nil
	}

	var single taskRequest
	if serr := json.Unmarshal(data, &single); serr != nil {
		return nil, fmt.Errorf("invalid task request: %w", serr)
	}
	return []taskRequest{single}, nil
}
