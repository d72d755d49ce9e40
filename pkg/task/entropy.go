package task

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/entropy"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/report"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/results"
)

const (
	// EntropyTaskName is used to register and route the entropy task.
	EntropyTaskName = "openrelik-worker-entropy.tasks.entropy"

	// ResultsDisplayName, ResultsExtension and ResultsDataType describe the results CSV output file.
	ResultsDisplayName = "entropy_results"
	ResultsExtension   = ".csv"
	ResultsDataType    = "openrelik:entropy:results"

	// ReportTitle is the title of the task report.
	ReportTitle = "Entropy analyzer report"
)

// EntropyMetadata describes the entropy task to the pipeline.
var EntropyMetadata = Metadata{
	DisplayName: "High Entropy",
	Description: "Detect files with entropy.",
	TaskConfig: []ConfigOption{
		{
			Name:        ThresholdOption,
			Label:       "Entropy threshold value",
			Description: fmt.Sprintf("Entropy threshold value. (default is %s)", results.FormatFloat(DefaultThreshold)),
			Type:        "string",
			Required:    false,
		},
	},
}

// EntropyTask measures the entropy of every input file, writes all results to a CSV output file and
// reports the files at or above the configured threshold.
type EntropyTask struct {
	output pipeline.OutputFileFactory
	logger *slog.Logger
	delim  string
}

// NewEntropyTask returns an [EntropyTask] writing through output. A nil logger uses [slog.Default].
func NewEntropyTask(output pipeline.OutputFileFactory, logger *slog.Logger) *EntropyTask {
	if output == nil {
		output = pipeline.LocalOutputFactory{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntropyTask{output: output, logger: logger}
}

// WithDelimiter changes the CSV delimiter of the results file.
func (t *EntropyTask) WithDelimiter(delim string) *EntropyTask {
	t.delim = delim
	return t
}

// Register adds the task to reg under [EntropyTaskName].
func (t *EntropyTask) Register(reg *Registry) error {
	return reg.Register(EntropyTaskName, EntropyMetadata, t.Run)
}

// Scan measures every file in order. The first file that can't be read aborts the scan.
func (t *EntropyTask) Scan(ctx context.Context, files []pipeline.InputFile) (*results.Results, error) {
	res := results.NewResults()
	if t.delim != "" {
		res = res.WithDelimiter(t.delim)
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := entropy.FileEntropy(f.Path)
		if err != nil {
			return nil, fmt.Errorf("error calculating entropy for file (%s): %w", f.Name(), err)
		}
		t.logger.Debug("calculated entropy", "file", f.Name(), "path", f.Path, "entropy", e)
		res.Add(f.Name(), e)
	}
	return res, nil
}

// BuildReport summarizes the results at or above threshold.
func BuildReport(res *results.Results, threshold float64) *report.Report {
	flagged := res.Flagged(threshold)

	r := report.New(ReportTitle)
	r.Summary = fmt.Sprintf("Found %d files with high entropy (>%s).", len(flagged), results.FormatFloat(threshold))
	r.AddSection().AddParagraph(r.Summary)

	details := r.AddSection()
	for _, f := range flagged {
		details.AddBullet(f.DisplayName+": "+results.FormatFloat(f.Entropy), 1)
	}
	return r
}

// Run executes one invocation of the entropy task.
func (t *EntropyTask) Run(ctx context.Context, req Request) (string, error) {
	log := t.logger.With("workflow_id", req.WorkflowID)

	files, err := pipeline.GetInputFiles(req.PipeResult, req.InputFiles)
	if err != nil {
		return "", fmt.Errorf("failed to resolve input files: %w", err)
	}

	threshold, err := ParseThreshold(req.TaskConfig)
	if err != nil {
		log.Warn("ignoring task config, using default threshold", "error", err, "threshold", threshold)
	}

	log.Info("scanning files", "files", len(files), "threshold", threshold)

	res, err := t.Scan(ctx, files)
	if err != nil {
		return "", err
	}

	data, err := res.MarshalCSV()
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	csvResult, err := t.output.CreateOutputFile(req.OutputPath, pipeline.OutputFileOptions{
		DisplayName: ResultsDisplayName,
		Extension:   ResultsExtension,
		DataType:    ResultsDataType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}

	if err = os.WriteFile(csvResult.Path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", csvResult.Path, err)
	}

	taskReport := BuildReport(res, threshold)
	log.Info(taskReport.Summary, "output", csvResult.Path)

	dict := taskReport.ToDict()

	return pipeline.CreateTaskResult(req.WorkflowID, []pipeline.OutputFile{csvResult}, &dict, map[string]any{})
}
