package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/task"
)

type taskInfo struct {
	Name string `json:"name"`
	task.Metadata
}

func registeredTasks() ([]taskInfo, error) {
	reg := task.NewRegistry()
	if err := task.NewEntropyTask(pipeline.LocalOutputFactory{}, nil).Register(reg); err != nil {
		return nil, err
	}
	var infos []taskInfo
	for _, name := range reg.Names() {
		entry, _ := reg.Lookup(name)
		infos = append(infos, taskInfo{Name: entry.Name, Metadata: entry.Metadata})
	}
	return infos, nil
}

func newMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata",
		Short: "Print the metadata of the registered tasks as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := registeredTasks()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(infos, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sandfly-entropyworker Version %s\n", constVersion)
		},
	}
}
