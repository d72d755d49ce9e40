package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/l0nax/go-spew/spew"
	"golang.org/x/term"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
)

func dumpResult(res *pipeline.TaskResult) {
	spew.Fdump(os.Stderr, res)
}

// printOutcomes writes one line per request: the encoded result, or the outcome as JSON when jsonOutput is set.
func printOutcomes(w io.Writer, outcomes []outcome, jsonOutput bool) error {
	for _, o := range outcomes {
		switch {
		case jsonOutput:
			line, err := json.Marshal(o)
			if err != nil {
				return err
			}
			if _, err = fmt.Fprintln(w, string(line)); err != nil {
				return err
			}
		case o.Result != "":
			if _, err := fmt.Fprintln(w, o.Result); err != nil {
				return err
			}
		default:
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printScanResult shows the markdown report on a terminal and the decoded task result as JSON otherwise.
func printScanResult(w io.Writer, res *pipeline.TaskResult, jsonOutput bool) error {
	if !jsonOutput && isTerminal(w) && res.TaskReport != nil {
		_, err := fmt.Fprintln(w, res.TaskReport.Content)
		return err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
