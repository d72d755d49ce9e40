package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/task"
)

// collectDir returns every regular file below dir, named by its path relative to dir.
func collectDir(dir string) ([]pipeline.InputFile, error) {
	var files []pipeline.InputFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, pipeline.InputFile{Path: path, DisplayName: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't walk '%s': %w", dir, err)
	}
	return files, nil
}

func newScanCmd() *cobra.Command {
	var (
		filePaths  []string
		dirPath    string
		threshold  string
		delim      string
		jsonOutput bool
		workflowID string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the entropy task against local files",
		Long: `Scan runs the entropy task once against the given files or every regular file below a directory.
On a terminal the task report is printed as markdown; otherwise the decoded task result is printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromFlags()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("delim") {
				cfg.Delimiter = delim
			}

			var files []pipeline.InputFile
			switch {
			case dirPath != "":
				if files, err = collectDir(dirPath); err != nil {
					return err
				}
			case len(filePaths) > 0:
				for _, p := range filePaths {
					files = append(files, pipeline.InputFile{Path: p, DisplayName: filepath.Base(p)})
				}
			default:
				return errors.New("nothing to scan, use --file or --dir")
			}

			if cfg.OutputPath == "" {
				tmp, terr := os.MkdirTemp("", "entropy-")
				if terr != nil {
					return terr
				}
				cfg.OutputPath = tmp
			}

			req := taskRequest{Request: task.Request{InputFiles: files, WorkflowID: workflowID}}
			if threshold != "" {
				req.TaskConfig = map[string]any{task.ThresholdOption: threshold}
			}

			w, err := newWorker(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			out := w.execute(cmd.Context(), req)
			if out.err != nil {
				return out.err
			}

			res, err := pipeline.DecodeTaskResult(out.Result)
			if err != nil {
				return err
			}
			return printScanResult(cmd.OutOrStdout(), res, jsonOutput)
		},
	}

	cmd.Flags().StringSliceVarP(&filePaths, "file", "f", nil, "file(s) to scan, repeat or comma separate")
	cmd.Flags().StringVarP(&dirPath, "dir", "d", "", "directory whose regular files are scanned recursively")
	cmd.Flags().StringVarP(&threshold, "threshold", "t", "", "entropy threshold (0.0 - 8.0, default 7.0)")
	cmd.Flags().StringVar(&delim, "delim", constDelimeterDefault, "delimiter for the results CSV")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "always print the task result as JSON")
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "workflow id recorded in the task result")
	cmd.MarkFlagsMutuallyExclusive("file", "dir")

	return cmd
}
