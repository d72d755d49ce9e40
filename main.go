// Sandfly Security entropy worker
package main

/*
This worker runs as a task inside a file processing pipeline. It calculates the entropy of every file handed to it
to see how random the contents are, writes the results of all files to a CSV file and reports the files at or above
an entropy threshold. Packed or encrypted malware often appears to be a very random file and this task can help
identify potential intrusions among collected evidence.

MIT License

Copyright (c) 2019-2022 Sandfly Security Ltd.
https://www.sandflysecurity.com

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated
documentation files (the "Software"), to deal in the Software without restriction, including without limitation the
rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of
the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO
THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	// constVersion Version
	constVersion = "1.3.0"
	// constDelimeterDefault default delimiter for CSV output.
	constDelimeterDefault = ","
)

var (
	flagEnvFile    string
	flagConfigFile string
	flagLogLevel   string
	flagOutputPath string
	flagDebug      bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sandfly-entropyworker",
		Short:         "Pipeline task that finds high entropy files",
		Long:          `sandfly-entropyworker calculates the Shannon entropy of files handed to it by a task pipeline, writes the results to a CSV file and reports files that are likely packed, compressed or encrypted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "path to a .env file to load before reading the environment")
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to a YAML worker config file (default $ENTROPY_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagOutputPath, "output-path", "", "directory output files are written to (default $ENTROPY_OUTPUT_PATH)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "dump decoded task results to stderr")

	root.AddCommand(newRunCmd(), newScanCmd(), newMetadataCmd(), newVersionCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
