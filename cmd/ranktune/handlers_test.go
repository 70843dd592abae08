package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/ranktune/internal/eval"
	"github.com/haasonsaas/ranktune/internal/rerank"
)

// execute runs the CLI with args and returns captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeRowsFile writes n corpus rows as JSONL, labels cycling 0..4.
func writeRowsFile(t *testing.T, dir string, n int) string {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < n; i++ {
		line := map[string]any{
			"example_id":    i,
			"citing_prompt": fmt.Sprintf("citing passage %d (<HOLDING>)", i),
			"holding_0":     fmt.Sprintf("holding %d.0", i),
			"holding_1":     fmt.Sprintf("holding %d.1", i),
			"holding_2":     fmt.Sprintf("holding %d.2", i),
			"holding_3":     fmt.Sprintf("holding %d.3", i),
			"holding_4":     fmt.Sprintf("holding %d.4", i),
			"label":         i % 5,
		}
		data, err := json.Marshal(line)
		if err != nil {
			t.Fatal(err)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return writeTestFile(t, dir, "rows.jsonl", sb.String())
}

// writeEvalSplit writes n test examples whose relevant passage starts with
// "relevant" so a scripted rerank server can find the right answer.
func writeEvalSplit(t *testing.T, dir string, n int) string {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < n; i++ {
		line := map[string]any{
			"query":             fmt.Sprintf("query %d", i),
			"relevant_passages": []string{fmt.Sprintf("relevant %d", i)},
			"hard_negatives": []string{
				fmt.Sprintf("neg %d.0", i),
				fmt.Sprintf("neg %d.1", i),
				fmt.Sprintf("neg %d.2", i),
				fmt.Sprintf("neg %d.3", i),
			},
			"label": i % 5,
		}
		data, err := json.Marshal(line)
		if err != nil {
			t.Fatal(err)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return writeTestFile(t, dir, "test.jsonl", sb.String())
}

// rerankServer answers each model's requests correctly up to the model's
// budget, then picks a wrong candidate.
func rerankServer(t *testing.T, correctPerModel map[string]int) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	calls := map[string]int{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerank.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rerank request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		relevant := -1
		for i, doc := range req.Documents {
			if strings.HasPrefix(doc, "relevant") {
				relevant = i
				break
			}
		}
		if relevant < 0 {
			t.Errorf("no relevant document in request: %v", req.Documents)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		mu.Lock()
		calls[req.Model]++
		answer := relevant
		if calls[req.Model] > correctPerModel[req.Model] {
			answer = (relevant + 1) % len(req.Documents)
		}
		mu.Unlock()

		json.NewEncoder(w).Encode(rerank.Response{
			ID:      "fixture",
			Results: []rerank.Result{{Index: answer, RelevanceScore: 0.9}},
		})
	}))
}

func TestPrepareFromFile(t *testing.T) {
	dir := t.TempDir()
	rowsPath := writeRowsFile(t, dir, 20)
	outDir := filepath.Join(dir, "out")
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", `
version: 1
split:
  train: 12
  valid: 5
  test: 3
`)

	out, err := execute(t, "prepare", "--config", cfgPath, "--from-file", rowsPath, "--output", outDir)
	if err != nil {
		t.Fatalf("prepare failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Read 20 rows") {
		t.Errorf("output missing row count:\n%s", out)
	}
	if !strings.Contains(out, "Prepared 20 examples (train 12, valid 5, test 3)") {
		t.Errorf("output missing summary:\n%s", out)
	}

	for name, want := range map[string]int{"train.jsonl": 12, "valid.jsonl": 5, "test.jsonl": 3} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		lines := strings.Count(string(data), "\n")
		if lines != want {
			t.Errorf("%s has %d lines, want %d", name, lines, want)
		}
	}
}

func TestPrepareSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	rowsPath := writeRowsFile(t, dir, 10)
	outDir := filepath.Join(dir, "out")
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", `
version: 1
split:
  train: 6
  valid: 3
  test: 1
`)

	if out, err := execute(t, "prepare", "--config", cfgPath, "--from-file", rowsPath, "--output", outDir); err != nil {
		t.Fatalf("first prepare failed: %v\n%s", err, out)
	}

	out, err := execute(t, "prepare", "--config", cfgPath, "--from-file", rowsPath, "--output", outDir)
	if err != nil {
		t.Fatalf("second prepare failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "exists, skipping (use --overwrite)") {
		t.Errorf("second run should report skipped files:\n%s", out)
	}

	out, err = execute(t, "prepare", "--config", cfgPath, "--from-file", rowsPath, "--output", outDir, "--overwrite")
	if err != nil {
		t.Fatalf("overwrite prepare failed: %v\n%s", err, out)
	}
	if strings.Contains(out, "skipping") {
		t.Errorf("overwrite run should not skip:\n%s", out)
	}
}

func TestPrepareFetchesFromHub(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{
			"row_idx": i,
			"row": map[string]any{
				"example_id":    i,
				"citing_prompt": fmt.Sprintf("citing passage %d", i),
				"holding_0":     "a", "holding_1": "b", "holding_2": "c",
				"holding_3": "d", "holding_4": "e",
				"label": i % 5,
			},
		}
	}
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rows" {
			t.Errorf("path = %s, want /rows", r.URL.Path)
		}
		if got := r.URL.Query().Get("dataset"); got != "casehold/casehold" {
			t.Errorf("dataset = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"rows":           rows,
			"num_rows_total": len(rows),
		})
	}))
	defer hub.Close()

	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", fmt.Sprintf(`
version: 1
dataset:
  base_url: %s
  limit: 5
split:
  train: 3
  valid: 1
  test: 1
`, hub.URL))

	out, err := execute(t, "prepare", "--config", cfgPath, "--output", outDir)
	if err != nil {
		t.Fatalf("prepare failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Fetched 5 rows from casehold/casehold") {
		t.Errorf("output missing fetch line:\n%s", out)
	}
}

func TestEvalReportsAccuracy(t *testing.T) {
	server := rerankServer(t, map[string]int{"rerank-english-v2.0": 6})
	defer server.Close()

	dir := t.TempDir()
	testPath := writeEvalSplit(t, dir, 10)
	reportPath := filepath.Join(dir, "report.json")
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", fmt.Sprintf(`
version: 1
rerank:
  base_url: %s
  api_key: test-key
`, server.URL))

	out, err := execute(t, "eval", "--config", cfgPath, "--test-file", testPath, "--output", reportPath)
	if err != nil {
		t.Fatalf("eval failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Model: rerank-english-v2.0") {
		t.Errorf("output missing model:\n%s", out)
	}
	if !strings.Contains(out, "Correct: 6") || !strings.Contains(out, "Accuracy: 0.600") {
		t.Errorf("output missing accuracy:\n%s", out)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report eval.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if report.Correct != 6 || report.Examples != 10 {
		t.Errorf("report = %d/%d, want 6/10", report.Correct, report.Examples)
	}
	if len(report.Predictions) != 10 {
		t.Errorf("report has %d predictions, want 10", len(report.Predictions))
	}
}

func TestEvalRequiresAPIKey(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "")

	dir := t.TempDir()
	testPath := writeEvalSplit(t, dir, 2)
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", "version: 1\n")

	_, err := execute(t, "eval", "--config", cfgPath, "--test-file", testPath)
	if err == nil {
		t.Fatal("expected error without api key")
	}
	if !strings.Contains(err.Error(), "api key") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCompareReportsDelta(t *testing.T) {
	server := rerankServer(t, map[string]int{
		"rerank-english-v2.0": 6,
		"tuned-model-ft":      8,
	})
	defer server.Close()

	dir := t.TempDir()
	testPath := writeEvalSplit(t, dir, 10)
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", fmt.Sprintf(`
version: 1
rerank:
  base_url: %s
  api_key: test-key
`, server.URL))

	out, err := execute(t, "compare", "--config", cfgPath, "--test-file", testPath, "--fine-tuned", "tuned-model-ft")
	if err != nil {
		t.Fatalf("compare failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Baseline (rerank-english-v2.0): accuracy 0.600 (6/10)") {
		t.Errorf("output missing baseline line:\n%s", out)
	}
	if !strings.Contains(out, "Fine-tuned (tuned-model-ft): accuracy 0.800 (8/10)") {
		t.Errorf("output missing fine-tuned line:\n%s", out)
	}
	if !strings.Contains(out, "Delta: +0.200") {
		t.Errorf("output missing delta:\n%s", out)
	}
}

func TestCompareRequiresFineTunedModel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", `
version: 1
rerank:
  api_key: test-key
`)

	_, err := execute(t, "compare", "--config", cfgPath)
	if err == nil {
		t.Fatal("expected error without fine-tuned model")
	}
	if !strings.Contains(err.Error(), "fine_tuned_model") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateAcceptsPreparedFiles(t *testing.T) {
	dir := t.TempDir()
	rowsPath := writeRowsFile(t, dir, 10)
	outDir := filepath.Join(dir, "out")
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", `
version: 1
split:
  train: 6
  valid: 3
  test: 1
`)
	if out, err := execute(t, "prepare", "--config", cfgPath, "--from-file", rowsPath, "--output", outDir); err != nil {
		t.Fatalf("prepare failed: %v\n%s", err, out)
	}

	out, err := execute(t, "validate",
		filepath.Join(outDir, "train.jsonl"),
		filepath.Join(outDir, "valid.jsonl"),
		filepath.Join(outDir, "test.jsonl"))
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "train.jsonl: 6 records OK") {
		t.Errorf("output missing train summary:\n%s", out)
	}
	if !strings.Contains(out, "test.jsonl: 1 records OK") {
		t.Errorf("output missing test summary:\n%s", out)
	}
}

func TestValidateFlagsBadRecords(t *testing.T) {
	dir := t.TempDir()
	bad := writeTestFile(t, dir, "bad.jsonl", strings.Join([]string{
		`{"query":"ok","relevant_passages":["r"],"hard_negatives":["a"]}`,
		`{"relevant_passages":["r"],"hard_negatives":["a"]}`,
		`{"query":"ok","relevant_passages":["r"],"hard_negatives":["a"],"label":9}`,
		`{"query":"ok","relevant_passages":["r"],"hard_negatives":["a"],"typo_field":true}`,
	}, "\n")+"\n")

	out, err := execute(t, "validate", bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "3 problem(s)") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "record 2") || !strings.Contains(out, "record 3") || !strings.Contains(out, "record 4") {
		t.Errorf("output should name each bad record:\n%s", out)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "ranktune.yaml", `
version: 1
dataset:
  token: hf_secret_token_value_1234567890abcdef
rerank:
  api_key: very-secret-rerank-key-123456
`)

	out, err := execute(t, "config", "show", "--config", cfgPath)
	if err != nil {
		t.Fatalf("config show failed: %v\n%s", err, out)
	}
	if strings.Contains(out, "very-secret-rerank-key-123456") || strings.Contains(out, "hf_secret_token_value_1234567890abcdef") {
		t.Errorf("config show leaked a credential:\n%s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("config show should mark redacted fields:\n%s", out)
	}
}

func TestConfigSchemaPrints(t *testing.T) {
	out, err := execute(t, "config", "schema")
	if err != nil {
		t.Fatalf("config schema failed: %v", err)
	}
	if !strings.Contains(out, "properties") || !strings.Contains(out, "rerank") {
		t.Errorf("schema output incomplete:\n%s", out)
	}
}
