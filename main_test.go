package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/pipeline"
	"github.com/sandflysecurity/sandfly-entropyworker/pkg/task"
)

func allBytes() []byte {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func writeInput(t *testing.T, dir, name string, data []byte) pipeline.InputFile {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return pipeline.InputFile{Path: path, DisplayName: name}
}

func testWorker(t *testing.T, cfg *workerConfig) *worker {
	t.Helper()
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	w, err := newWorker(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	return w
}

func readCSV(t *testing.T, res *pipeline.TaskResult) string {
	t.Helper()
	require.Len(t, res.OutputFiles, 1)
	data, err := os.ReadFile(res.OutputFiles[0].Path)
	require.NoError(t, err)
	return string(data)
}

func TestWorkerExecute(t *testing.T) {
	in := t.TempDir()
	w := testWorker(t, &workerConfig{OutputPath: t.TempDir()})

	out := w.execute(context.Background(), taskRequest{Request: task.Request{
		WorkflowID: "wf-1",
		InputFiles: []pipeline.InputFile{
			writeInput(t, in, "zeros.bin", make([]byte, 64)),
			writeInput(t, in, "random.bin", allBytes()),
		},
	}})
	require.NoError(t, out.err)
	assert.Empty(t, out.Error)

	res, err := pipeline.DecodeTaskResult(out.Result)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", res.WorkflowID)
	assert.Equal(t, "path,entropy\r\nzeros.bin,0.0\r\nrandom.bin,8.0\r\n", readCSV(t, res))
	require.NotNil(t, res.TaskReport)
	assert.Equal(t, "Found 1 files with high entropy (>7.0).", res.TaskReport.Summary)
}

func TestWorkerConfigThreshold(t *testing.T) {
	in := t.TempDir()
	files := []pipeline.InputFile{writeInput(t, in, "random.bin", allBytes())}

	w := testWorker(t, &workerConfig{OutputPath: t.TempDir(), Threshold: "8.0"})

	out := w.execute(context.Background(), taskRequest{Request: task.Request{InputFiles: files}})
	require.NoError(t, out.err)
	res, err := pipeline.DecodeTaskResult(out.Result)
	require.NoError(t, err)
	assert.Equal(t, "Found 1 files with high entropy (>8.0).", res.TaskReport.Summary)

	// the request's own threshold wins over the configured one
	taskConfig := map[string]any{task.ThresholdOption: "2.5"}
	out = w.execute(context.Background(), taskRequest{Request: task.Request{InputFiles: files, TaskConfig: taskConfig}})
	require.NoError(t, out.err)
	res, err = pipeline.DecodeTaskResult(out.Result)
	require.NoError(t, err)
	assert.Equal(t, "Found 1 files with high entropy (>2.5).", res.TaskReport.Summary)
	assert.Len(t, taskConfig, 1)
}

func TestWorkerWithDefaultsCopiesTaskConfig(t *testing.T) {
	w := testWorker(t, &workerConfig{OutputPath: "/out", Threshold: "6.0"})

	orig := map[string]any{"other": true}
	req := w.withDefaults(taskRequest{Request: task.Request{TaskConfig: orig}})
	assert.Equal(t, task.EntropyTaskName, req.Task)
	assert.Equal(t, "/out", req.OutputPath)
	assert.Equal(t, "6.0", req.TaskConfig[task.ThresholdOption])
	assert.NotContains(t, orig, task.ThresholdOption)

	req = w.withDefaults(taskRequest{Task: "custom", Request: task.Request{OutputPath: "/mine"}})
	assert.Equal(t, "custom", req.Task)
	assert.Equal(t, "/mine", req.OutputPath)
}

func TestWorkerUnknownTask(t *testing.T) {
	w := testWorker(t, &workerConfig{OutputPath: t.TempDir()})
	out := w.execute(context.Background(), taskRequest{Task: "nope"})
	require.ErrorIs(t, out.err, task.ErrUnknownTask)
	assert.Empty(t, out.Result)
	assert.NotEmpty(t, out.Error)
}

func TestWorkerRunAll(t *testing.T) {
	in := t.TempDir()
	w := testWorker(t, &workerConfig{OutputPath: t.TempDir(), Concurrency: 2})

	reqs := []taskRequest{
		{Request: task.Request{WorkflowID: "ok-1", InputFiles: []pipeline.InputFile{writeInput(t, in, "a", []byte("aaaa"))}}},
		{Request: task.Request{WorkflowID: "broken", InputFiles: []pipeline.InputFile{{Path: filepath.Join(in, "missing")}}}},
		{Request: task.Request{WorkflowID: "ok-2", InputFiles: []pipeline.InputFile{writeInput(t, in, "b", allBytes())}}},
	}

	outcomes, err := w.runAll(context.Background(), reqs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	require.Len(t, outcomes, 3)

	assert.Equal(t, "ok-1", outcomes[0].WorkflowID)
	assert.NotEmpty(t, outcomes[0].Result)
	assert.Equal(t, "broken", outcomes[1].WorkflowID)
	assert.Empty(t, outcomes[1].Result)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Equal(t, "ok-2", outcomes[2].WorkflowID)
	assert.NotEmpty(t, outcomes[2].Result)
}

func TestWorkerMirror(t *testing.T) {
	in := t.TempDir()
	mirror := t.TempDir()
	w := testWorker(t, &workerConfig{OutputPath: t.TempDir(), MirrorDir: mirror})
	require.NotNil(t, w.store)

	out := w.execute(context.Background(), taskRequest{Request: task.Request{
		WorkflowID: "wf-m",
		InputFiles: []pipeline.InputFile{writeInput(t, in, "a", []byte("abc"))},
	}})
	require.NoError(t, out.err)

	res, err := pipeline.DecodeTaskResult(out.Result)
	require.NoError(t, err)
	mirrored, err := os.ReadFile(filepath.Join(mirror, "wf-m", res.OutputFiles[0].Filename))
	require.NoError(t, err)
	assert.Equal(t, readCSV(t, res), string(mirrored))
}

func TestWorkerNoStore(t *testing.T) {
	w := testWorker(t, &workerConfig{OutputPath: t.TempDir()})
	assert.Nil(t, w.store)
}

func TestDecodeRequests(t *testing.T) {
	reqs, err := decodeRequests(strings.NewReader(`{"workflow_id": "one", "input_files": [{"path": "/x", "display_name": "x"}]}`))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "one", reqs[0].WorkflowID)
	assert.Equal(t, "/x", reqs[0].InputFiles[0].Path)

	reqs, err = decodeRequests(strings.NewReader(`[{"task": "t1", "task_config": {"threshold": 6}}, {"workflow_id": "b"}]`))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "t1", reqs[0].Task)
	assert.InDelta(t, 6.0, reqs[0].TaskConfig["threshold"], 0)
	assert.Equal(t, "b", reqs[1].WorkflowID)

	_, err = decodeRequests(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestCollectDir(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "top.bin", []byte("x"))
	writeInput(t, dir, filepath.Join("nested", "deep.bin"), []byte("y"))

	files, err := collectDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	names := []string{files[0].DisplayName, files[1].DisplayName}
	assert.ElementsMatch(t, []string{"top.bin", "nested/deep.bin"}, names)

	_, err = collectDir(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestPrintOutcomes(t *testing.T) {
	outcomes := []outcome{{WorkflowID: "a", Result: "ZW5j"}, {WorkflowID: "b", Error: "boom"}}

	buf := &bytes.Buffer{}
	require.NoError(t, printOutcomes(buf, outcomes, false))
	assert.Equal(t, "ZW5j\n", buf.String())

	buf.Reset()
	require.NoError(t, printOutcomes(buf, outcomes, true))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"workflow_id": "b", "error": "boom"}`, lines[1])
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "sandfly-entropyworker Version "+constVersion+"\n", out)
}

func TestMetadataCmd(t *testing.T) {
	out, err := execute(t, "", "metadata")
	require.NoError(t, err)

	var infos []taskInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, task.EntropyTaskName, infos[0].Name)
	assert.Equal(t, "High Entropy", infos[0].DisplayName)
	require.Len(t, infos[0].TaskConfig, 1)
	assert.Equal(t, task.ThresholdOption, infos[0].TaskConfig[0].Name)
}

func TestRunCmdStdin(t *testing.T) {
	in := t.TempDir()
	f := writeInput(t, in, "random.bin", allBytes())
	req, err := json.Marshal(map[string]any{
		"workflow_id": "stdin-wf",
		"input_files": []pipeline.InputFile{f},
	})
	require.NoError(t, err)

	out, err := execute(t, string(req), "run", "--output-path", t.TempDir(), "--log-level", "error")
	require.NoError(t, err)

	res, err := pipeline.DecodeTaskResult(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "stdin-wf", res.WorkflowID)
	assert.Equal(t, "path,entropy\r\nrandom.bin,8.0\r\n", readCSV(t, res))
}

func TestRunCmdRequestFile(t *testing.T) {
	in := t.TempDir()
	good := writeInput(t, in, "a.bin", []byte("abab"))
	reqs, err := json.Marshal([]map[string]any{
		{"workflow_id": "good", "input_files": []pipeline.InputFile{good}},
		{"workflow_id": "bad", "input_files": []pipeline.InputFile{{Path: filepath.Join(in, "missing")}}},
	})
	require.NoError(t, err)
	reqFile := filepath.Join(in, "requests.json")
	require.NoError(t, os.WriteFile(reqFile, reqs, 0o644))

	out, err := execute(t, "", "run", "--json", "--output-path", t.TempDir(), "--log-level", "error", reqFile)
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var first, second outcome
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "good", first.WorkflowID)
	assert.NotEmpty(t, first.Result)
	assert.Equal(t, "bad", second.WorkflowID)
	assert.NotEmpty(t, second.Error)
}

func TestRunCmdNoRequests(t *testing.T) {
	_, err := execute(t, "[]", "run", "--log-level", "error")
	require.Error(t, err)
}

func TestScanCmd(t *testing.T) {
	dir := t.TempDir()
	writeInput(t, dir, "random.bin", allBytes())
	writeInput(t, dir, filepath.Join("sub", "zeros.bin"), make([]byte, 32))

	out, err := execute(t, "", "scan", "--dir", dir, "--threshold", "5", "--workflow-id", "scan-wf",
		"--output-path", t.TempDir(), "--log-level", "error")
	require.NoError(t, err)

	var res pipeline.TaskResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "scan-wf", res.WorkflowID)
	require.NotNil(t, res.TaskReport)
	assert.Equal(t, "Found 1 files with high entropy (>5.0).", res.TaskReport.Summary)
	assert.Contains(t, readCSV(t, &res), "sub/zeros.bin,0.0\r\n")
}

func TestScanCmdFilesAndDelimiter(t *testing.T) {
	dir := t.TempDir()
	f := writeInput(t, dir, "one.bin", []byte("aaaa"))

	out, err := execute(t, "", "scan", "--file", f.Path, "--delim", ";", "--json",
		"--output-path", t.TempDir(), "--log-level", "error")
	require.NoError(t, err)

	var res pipeline.TaskResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "path;entropy\r\none.bin;0.0\r\n", readCSV(t, &res))
}

func TestScanCmdErrors(t *testing.T) {
	_, err := execute(t, "", "scan", "--log-level", "error")
	require.Error(t, err)

	_, err = execute(t, "", "scan", "--file", "a", "--dir", "b", "--log-level", "error")
	require.Error(t, err)
}

func TestWorkerExecuteDebugDump(t *testing.T) {
	flagDebug = true
	t.Cleanup(func() { flagDebug = false })

	in := t.TempDir()
	w := testWorker(t, &workerConfig{OutputPath: t.TempDir()})
	out := w.execute(context.Background(), taskRequest{Request: task.Request{
		InputFiles: []pipeline.InputFile{writeInput(t, in, "a", []byte("abc"))},
	}})
	require.NoError(t, out.err)
	assert.NotEmpty(t, out.Result)
}
