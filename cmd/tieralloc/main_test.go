package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/tier-alloc/internal/ingest"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/store"
)

// isolateHome points HOME at a temp directory so tests never touch the
// real ~/.tieralloc, and clears environment overrides.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", home)
	for _, key := range []string{"TIERALLOC_LOG_LEVEL", "TIERALLOC_DB_PATH", "TIERALLOC_SERVER_ADDR", "TIERALLOC_LEGACY_RATIO"} {
		t.Setenv(key, "")
	}
	return home
}

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

func runCmd(t *testing.T, stdin string, args ...string) cmdResult {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

var countyRows = []store.GroupWeights{
	{Group: "A", Weights: models.RowFromInts(10, 10, 8, 8, 6, 6, 4, 4, 2, 2)},
	{Group: "B", Weights: models.RowFromInts(5, 5, 4, 4, 3, 3, 2, 2, 1, 1)},
}

// seedWeights imports rows for dt into the database at dbPath through a workbook.
func seedWeights(t *testing.T, dbPath, dt string, rows []store.GroupWeights) {
	t.Helper()
	book := filepath.Join(t.TempDir(), dt+".xlsx")
	if err := ingest.SaveWeights(book, "", rows); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}
	res := runCmd(t, "", "--db", dbPath, "weights", "import", dt, book)
	if res.err != nil {
		t.Fatalf("weights import failed: %v\n%s", res.err, res.stderr)
	}
	if !strings.Contains(res.stdout, "Imported 2 groups for "+dt) {
		t.Errorf("import output = %q", res.stdout)
	}
}

func seedCounty(t *testing.T, dbPath string) {
	t.Helper()
	seedWeights(t, dbPath, "county", countyRows)
}

func TestVersionCmd(t *testing.T) {
	res := runCmd(t, "", "version")
	if res.err != nil || !strings.Contains(res.stdout, "tieralloc version "+version) {
		t.Errorf("version = %q, err = %v", res.stdout, res.err)
	}

	res = runCmd(t, "", "version", "--json")
	var out map[string]string
	if err := json.Unmarshal([]byte(res.stdout), &out); err != nil || out["version"] != version {
		t.Errorf("version --json = %q", res.stdout)
	}
}

func TestInitCmd(t *testing.T) {
	home := isolateHome(t)

	res := runCmd(t, "", "init")
	if res.err != nil {
		t.Fatalf("init failed: %v", res.err)
	}
	for _, name := range []string{"config.yaml", "tieralloc.db"} {
		if _, err := os.Stat(filepath.Join(home, ".tieralloc", name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	res = runCmd(t, "", "init", "--json")
	var out map[string]any
	if err := json.Unmarshal([]byte(res.stdout), &out); err != nil {
		t.Fatalf("init --json output %q: %v", res.stdout, err)
	}
	if out["config_created"] != false {
		t.Error("second init must not rewrite the config")
	}
}

func TestWeightsCmds(t *testing.T) {
	isolateHome(t)
	dbPath := filepath.Join(t.TempDir(), "t.db")
	seedCounty(t, dbPath)

	res := runCmd(t, "", "--db", dbPath, "weights", "show", "county", "--json")
	if res.err != nil {
		t.Fatalf("weights show failed: %v", res.err)
	}
	var shown struct {
		Rows []store.GroupWeights `json:"rows"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &shown); err != nil {
		t.Fatalf("weights show output: %v", err)
	}
	if len(shown.Rows) != 2 || shown.Rows[1].Group != "B" {
		t.Errorf("rows = %+v", shown.Rows)
	}

	out := filepath.Join(t.TempDir(), "export.xlsx")
	if res := runCmd(t, "", "--db", dbPath, "weights", "export", "county", out); res.err != nil {
		t.Fatalf("weights export failed: %v", res.err)
	}
	rows, err := ingest.OpenWeights(out, "")
	if err != nil || len(rows) != 2 {
		t.Errorf("exported workbook = %d rows, err %v", len(rows), err)
	}

	if res := runCmd(t, "", "--db", dbPath, "weights", "show", "bicycle"); res.err == nil {
		t.Error("expected error for unknown delivery type")
	}
}

func TestAllocateCmd_Encoded(t *testing.T) {
	isolateHome(t)
	dbPath := filepath.Join(t.TempDir(), "t.db")
	seedCounty(t, dbPath)

	res := runCmd(t, "", "--db", dbPath, "allocate", "county", "--target", "100", "--encoded")
	if res.err != nil {
		t.Fatalf("allocate failed: %v", res.err)
	}
	want := "A: 1×2+9×1+20×0\nB: 10×1+20×0\n"
	if res.stdout != want {
		t.Errorf("stdout = %q, want %q", res.stdout, want)
	}
}

func TestAllocateCmd_SaveHistoryExport(t *testing.T) {
	isolateHome(t)
	dbPath := filepath.Join(t.TempDir(), "t.db")
	seedCounty(t, dbPath)

	res := runCmd(t, "", "--db", dbPath, "allocate", "county", "--target", "400", "--groups", "A", "--save", "--json")
	if res.err != nil {
		t.Fatalf("allocate failed: %v", res.err)
	}
	var out struct {
		ID       string `json:"id"`
		Achieved string `json:"achieved"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &out); err != nil {
		t.Fatalf("allocate --json output %q: %v", res.stdout, err)
	}
	if out.ID == "" || out.Achieved != "400" || out.Error != "0" {
		t.Errorf("allocate = %+v", out)
	}

	res = runCmd(t, "", "--db", dbPath, "history", "--json")
	var records []store.Record
	if err := json.Unmarshal([]byte(res.stdout), &records); err != nil {
		t.Fatalf("history --json output %q: %v", res.stdout, err)
	}
	if len(records) != 1 || records[0].ID != out.ID {
		t.Fatalf("history = %+v", records)
	}

	book := filepath.Join(t.TempDir(), "alloc.xlsx")
	if res := runCmd(t, "", "--db", dbPath, "export", out.ID, book); res.err != nil {
		t.Fatalf("export failed: %v", res.err)
	}
	if _, err := os.Stat(book); err != nil {
		t.Errorf("workbook not written: %v", err)
	}

	if res := runCmd(t, "", "--db", dbPath, "export", "missing", book); res.err == nil {
		t.Error("expected error exporting unknown allocation")
	}
}

func TestAllocateCmd_InputErrorWarns(t *testing.T) {
	isolateHome(t)
	dbPath := filepath.Join(t.TempDir(), "t.db")
	seedCounty(t, dbPath)

	res := runCmd(t, "", "--db", dbPath, "allocate", "county", "--target", "50", "--groups", "A,Z", "--encoded")
	if res.err != nil {
		t.Fatalf("input problems should not fail the command: %v", res.err)
	}
	if !strings.Contains(res.stderr, "warning:") {
		t.Errorf("stderr = %q, want warning", res.stderr)
	}
	if res.stdout != "A+Z: 30×0\n" {
		t.Errorf("stdout = %q, want zero rows", res.stdout)
	}
}

func TestAllocateCmd_SplitNeedsRatios(t *testing.T) {
	isolateHome(t)
	dbPath := filepath.Join(t.TempDir(), "t.db")
	seedWeights(t, dbPath, "market", []store.GroupWeights{
		{Group: "urban", Weights: countyRows[0].Weights},
		{Group: "rural", Weights: countyRows[1].Weights},
	})

	res := runCmd(t, "", "--db", dbPath, "allocate", "market", "--target", "100")
	if res.err == nil || !strings.Contains(res.err.Error(), "invalid split configuration") {
		t.Errorf("err = %v, want configuration error", res.err)
	}

	res = runCmd(t, "", "--db", dbPath, "allocate", "county", "--target", "many")
	if res.err == nil {
		t.Error("expected error for malformed target")
	}
}

func TestDecodeCmd(t *testing.T) {
	res := runCmd(t, "", "decode", "x+y: 2×2+28×1")
	if res.err != nil {
		t.Fatalf("decode failed: %v", res.err)
	}
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "y: 2 2 1 1") {
		t.Errorf("decode output = %q", res.stdout)
	}

	res = runCmd(t, "z: 30x0\n\n", "decode", "--json")
	var m models.AllocationMatrix
	if err := json.Unmarshal([]byte(res.stdout), &m); err != nil {
		t.Fatalf("decode --json output %q: %v", res.stdout, err)
	}
	if m.Len() != 1 || m.Groups[0] != "z" {
		t.Errorf("decoded = %+v", m)
	}

	if res := runCmd(t, "", "decode", "z: 29×0"); res.err == nil {
		t.Error("expected error for a short row")
	}
}

func TestConfigCmds(t *testing.T) {
	home := isolateHome(t)

	res := runCmd(t, "", "config", "set", "engine.error_threshold", "150")
	if res.err != nil {
		t.Fatalf("config set failed: %v", res.err)
	}
	if _, err := os.Stat(filepath.Join(home, ".tieralloc", "config.yaml")); err != nil {
		t.Errorf("config not saved: %v", err)
	}

	res = runCmd(t, "", "config", "get", "engine.error_threshold")
	if res.err != nil || strings.TrimSpace(res.stdout) != "engine.error_threshold = 150" {
		t.Errorf("config get = %q, err %v", res.stdout, res.err)
	}

	if res := runCmd(t, "", "config", "set", "engine.basic_iterations", "0"); res.err == nil {
		t.Error("expected invalid config to be rejected")
	}
	if res := runCmd(t, "", "config", "get", "no.such.key"); res.err == nil {
		t.Error("expected error for unknown key")
	}

	res = runCmd(t, "", "config", "list")
	if res.err != nil || !strings.Contains(res.stdout, "split.legacy_default_ratio.enabled") {
		t.Errorf("config list = %q, err %v", res.stdout, res.err)
	}
}

func TestBackupRestoreCmds(t *testing.T) {
	home := isolateHome(t)
	dbPath := filepath.Join(t.TempDir(), "t.db")
	seedCounty(t, dbPath)
	if res := runCmd(t, "", "--db", dbPath, "allocate", "county", "--target", "100", "--save"); res.err != nil {
		t.Fatalf("allocate failed: %v", res.err)
	}

	res := runCmd(t, "", "--db", dbPath, "backup", "--json")
	if res.err != nil {
		t.Fatalf("backup failed: %v\n%s", res.err, res.stderr)
	}
	var created struct {
		Path        string `json:"path"`
		WeightRows  int    `json:"weight_rows"`
		Allocations int    `json:"allocations"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &created); err != nil {
		t.Fatalf("backup --json output %q: %v", res.stdout, err)
	}
	if created.WeightRows != 2 || created.Allocations != 1 {
		t.Errorf("backup = %+v", created)
	}
	if filepath.Dir(created.Path) != filepath.Join(home, ".tieralloc", "backups") {
		t.Errorf("backup path = %s", created.Path)
	}

	res = runCmd(t, "", "backup", "list")
	if res.err != nil || !strings.Contains(res.stdout, filepath.Base(created.Path)) {
		t.Errorf("backup list = %q, err %v", res.stdout, res.err)
	}

	res = runCmd(t, "", "backup", "verify", created.Path)
	if res.err != nil || !strings.HasPrefix(res.stdout, "OK: 2 weight rows, 1 allocations") {
		t.Errorf("backup verify = %q, err %v", res.stdout, res.err)
	}

	fresh := filepath.Join(t.TempDir(), "fresh.db")
	res = runCmd(t, "", "--db", fresh, "restore", created.Path)
	if res.err != nil || !strings.Contains(res.stdout, "Allocations: 1 added, 0 skipped") {
		t.Fatalf("restore = %q, err %v", res.stdout, res.err)
	}

	res = runCmd(t, "", "--db", fresh, "history", "--json")
	var records []store.Record
	if err := json.Unmarshal([]byte(res.stdout), &records); err != nil {
		t.Fatalf("history --json output %q: %v", res.stdout, err)
	}
	if len(records) != 1 {
		t.Errorf("restored history has %d records, want 1", len(records))
	}
}
