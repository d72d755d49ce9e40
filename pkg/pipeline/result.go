package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/report"
)

// ErrInvalidPipeResult is returned when a previous task's result can't be decoded.
var ErrInvalidPipeResult = errors.New("invalid pipe result")

// TaskResult is the envelope returned to the pipeline after a task invocation.
type TaskResult struct {
	WorkflowID  string         `json:"workflow_id"`
	OutputFiles []OutputFile   `json:"output_files"`
	TaskReport  *report.Dict   `json:"task_report,omitempty"`
	Meta        map[string]any `json:"meta"`
}

// CreateTaskResult builds and encodes a [TaskResult].
func CreateTaskResult(workflowID string, outputFiles []OutputFile, taskReport *report.Dict, meta map[string]any) (string, error) {
	if outputFiles == nil {
		outputFiles = make([]OutputFile, 0)
	}
	if meta == nil {
		meta = make(map[string]any)
	}
	res := &TaskResult{
		WorkflowID:  workflowID,
		OutputFiles: outputFiles,
		TaskReport:  taskReport,
		Meta:        meta,
	}
	return res.Encode()
}

// Encode serializes the envelope as base64 encoded JSON.
func (r *TaskResult) Encode() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task result: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTaskResult reverses [TaskResult.Encode].
func DecodeTaskResult(encoded string) (*TaskResult, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPipeResult, err)
	}
	res := new(TaskResult)
	if err = json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPipeResult, err)
	}
	return res, nil
}

// GetInputFiles resolves the files a task should work on. The output files of a previous task take
// precedence over an explicit input file list.
func GetInputFiles(pipeResult string, inputFiles []InputFile) ([]InputFile, error) {
	if pipeResult == "" {
		if inputFiles == nil {
			return make([]InputFile, 0), nil
		}
		return inputFiles, nil
	}

	prev, err := DecodeTaskResult(pipeResult)
	if err != nil {
		return nil, err
	}

	files := make([]InputFile, 0, len(prev.OutputFiles))
	for _, o := range prev.OutputFiles {
		files = append(files, o.AsInput())
	}
	return files, nil
}
