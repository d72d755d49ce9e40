// Package pipeline holds the contracts a task shares with the surrounding task pipeline:
// the files it receives, the output files it creates and the result envelope it returns.
package pipeline

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNoOutputPath is returned when an output file is requested without an output directory.
var ErrNoOutputPath = errors.New("no output path provided")

// InputFile is a file handed to a task, either listed explicitly or produced by a previous task.
type InputFile struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`

	UUID      string `json:"uuid,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Extension string `json:"extension,omitempty"`
	DataType  string `json:"data_type,omitempty"`
}

// Name returns the display name, falling back to the base name of the path.
func (f InputFile) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return filepath.Base(f.Path)
}

// OutputFile describes a file written by a task.
type OutputFile struct {
	UUID         string `json:"uuid"`
	Filename     string `json:"filename"`
	DisplayName  string `json:"display_name"`
	Extension    string `json:"extension"`
	DataType     string `json:"data_type"`
	Path         string `json:"path"`
	OriginalPath string `json:"original_path,omitempty"`
	SourceFileID string `json:"source_file_id,omitempty"`
}

// AsInput converts the descriptor into an [InputFile] for the next task.
func (o OutputFile) AsInput() InputFile {
	return InputFile{
		Path:        o.Path,
		DisplayName: o.DisplayName,
		UUID:        o.UUID,
		Filename:    o.Filename,
		Extension:   o.Extension,
		DataType:    o.DataType,
	}
}

// OutputFileOptions names and tags a new output file.
type OutputFileOptions struct {
	DisplayName string
	// Extension with or without the leading dot.
	Extension string
	DataType  string
}

// OutputFileFactory hands out writable locations for task output.
type OutputFileFactory interface {
	CreateOutputFile(outputPath string, opts OutputFileOptions) (OutputFile, error)
}

// LocalOutputFactory creates output files named after a random UUID inside the output directory.
type LocalOutputFactory struct{}

var _ OutputFileFactory = LocalOutputFactory{}

func (LocalOutputFactory) CreateOutputFile(outputPath string, opts OutputFileOptions) (OutputFile, error) {
	if outputPath == "" {
		return OutputFile{}, ErrNoOutputPath
	}
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return OutputFile{}, fmt.Errorf("failed to create output directory %s: %w", outputPath, err)
	}

	id := uuid.New()
	ext := strings.TrimPrefix(opts.Extension, ".")

	out := OutputFile{
		UUID:        hex.EncodeToString(id[:]),
		DisplayName: opts.DisplayName,
		Extension:   ext,
		DataType:    opts.DataType,
	}
	out.Filename = out.UUID
	if ext != "" {
		out.Filename += "." + ext
		out.DisplayName += "." + ext
	}
	out.Path = filepath.Join(outputPath, out.Filename)

	return out, nil
}
