package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func readRequests(cmd *cobra.Command, args []string) ([]taskRequest, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}

	var reqs []taskRequest
	for _, arg := range args {
		var (
			r   io.Reader
			err error
		)
		switch arg {
		case "-":
			r = cmd.InOrStdin()
		default:
			var f *os.File
			if f, err = os.Open(arg); err != nil {
				return nil, fmt.Errorf("couldn't open request file '%s': %w", arg, err)
			}
			defer func() { _ = f.Close() }()
			r = f
		}
		batch, err := decodeRequests(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		reqs = append(reqs, batch...)
	}
	return reqs, nil
}

func newRunCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run [request.json ...]",
		Short: "Run task requests read from files or stdin",
		Long: `Run reads task requests as JSON, either a single object or an array, from each file argument or from
stdin when no file or "-" is given. Every request is executed and its encoded task result is printed on its own line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}

			reqs, err := readRequests(cmd, args)
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				return errors.New("no task requests given")
			}

			w, err := newWorker(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			outcomes, runErr := w.runAll(cmd.Context(), reqs)
			if outcomes != nil {
				if err = printOutcomes(cmd.OutOrStdout(), outcomes, jsonOutput); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print one JSON outcome per request, including failures")

	return cmd
}
