package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/verify"
)

const leieCSV = "LASTNAME,FIRSTNAME,MIDNAME,BUSNAME,EXCLTYPE,EXCLDATE,NPI\n" +
	"DOE,JOHN,,,1128a1,20200115,1234567890\n" +
	"ROE,RICHARD,,,1128b4,20190301,\n"

// setupCLI writes a config.yaml in a temp working directory that points the
// oig source at a local server and stores results in sqlite.
func setupCLI(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, leieCSV)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	catalogYAML := fmt.Sprintf(`
sources:
  - id: oig
    name: OIG test mirror
    family: federal_exclusion
    jurisdiction: us
    fetch: file
    url: %s/leie.csv
    format: csv
    columns:
      first_name: FIRSTNAME
      last_name: LASTNAME
      middle_name: MIDNAME
      organization: BUSNAME
      exclusion_type: EXCLTYPE
      exclusion_date: EXCLDATE
      npi: NPI
    date_layouts: ["20060102"]
    enabled: true
    refresh_interval: 24h
`, srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sources.yaml"), []byte(catalogYAML), 0o644))

	configYAML := fmt.Sprintf(`
store:
  driver: sqlite
  database_url: %s
log:
  level: error
ingest:
  temp_dir: %s
sources:
  catalog_file: sources.yaml
  enabled: [oig]
verify:
  remote_pacing_ms: 0
`, filepath.Join(dir, "verify.db"), filepath.Join(dir, "tmp"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configYAML), 0o644))

	subjectsCSV := "id,first_name,last_name,npi\ns1,John,Doe,1234567890\ns2,Alice,Clean,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subjects.csv"), []byte(subjectsCSV), 0o644))

	return dir, &hits
}

// resetFlags restores every flag to its default so one invocation cannot
// leak into the next.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_ImportAndVerify(t *testing.T) {
	_, hits := setupCLI(t)

	out, err := runCLI(t, "subjects", "import", "--file", "subjects.csv")
	require.NoError(t, err)
	assert.JSONEq(t, `{"imported":2}`, out)

	out, err = runCLI(t, "subjects", "list", "--limit", "0")
	require.NoError(t, err)
	var subjects []model.Subject
	require.NoError(t, json.Unmarshal([]byte(out), &subjects))
	assert.Len(t, subjects, 2)

	out, err = runCLI(t, "verify", "s1", "--types", "oig,unknown_type")
	require.NoError(t, err)
	var verdicts []model.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &verdicts))
	require.Len(t, verdicts, 2)
	assert.Equal(t, model.StatusFailed, verdicts[0].Status)
	assert.Equal(t, "oig", verdicts[0].Type)
	assert.Equal(t, model.StatusPending, verdicts[1].Status)
	assert.Equal(t, "UNKNOWN_TYPE API", verdicts[1].DataSource)
	assert.EqualValues(t, 1, hits.Load(), "lazy load fetches once")

	out, err = runCLI(t, "batch", "--all", "--types", "oig")
	require.NoError(t, err)
	var sum verify.BatchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, 2, sum.Subjects)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.ByStatus[model.StatusFailed])
	assert.Equal(t, 1, sum.ByStatus[model.StatusPassed])

	out, err = runCLI(t, "status")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 4, report.Verdicts.TotalChecks)
	assert.Equal(t, []string{"oig"}, report.Types)
	require.NotEmpty(t, report.LastRefreshes)
	assert.True(t, report.LastRefreshes[0].Success)
}

func TestCLI_VerifyUnknownSubject(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "verify", "ghost", "--types", "oig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `subject "ghost" not found`)
}

func TestCLI_VerifyRequiresTypes(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "verify", "s1", "--types", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--types")
}

func TestCLI_Refresh(t *testing.T) {
	_, hits := setupCLI(t)

	out, err := runCLI(t, "refresh", "--concurrency", "1")
	require.NoError(t, err)
	var attempts []model.RefreshAttempt
	require.NoError(t, json.Unmarshal([]byte(out), &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, "oig", attempts[0].SourceID)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, 2, attempts[0].RecordCount)
	assert.EqualValues(t, 1, hits.Load())

	_, err = runCLI(t, "refresh", "medicaid_ny")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 sources failed")
}

func TestCLI_Migrate(t *testing.T) {
	dir, _ := setupCLI(t)

	_, err := runCLI(t, "migrate")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "verify.db"))
}

func TestCLI_InvalidConfig(t *testing.T) {
	setupCLI(t)
	t.Setenv("VERIFY_STORE_DRIVER", "mysql")

	_, err := runCLI(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"oig", "sam", "license"}, splitList([]string{"oig, sam", "", " license "}))
	assert.Nil(t, splitList(nil))
}
