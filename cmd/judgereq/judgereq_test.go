package judgereq

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elmanelman/sql-judge/judge"
	"github.com/stretchr/testify/require"
)

const request = `{
	"studentSql": "select name from people where age > 30;",
	"referenceSql": "SELECT name FROM people WHERE NOT age <= 30",
	"schemaPreview": {"tables": [{"name": "people", "columns": ["id", "name", "age"], "rows": [
		{"id": 1, "name": "Ann", "age": 25},
		{"id": 2, "name": "Bob", "age": 41},
		{"id": 3, "name": "Cid", "age": 33}
	]}]},
	"questionKey": "7"
}`

func runJudge(t *testing.T, stdin string, args ...string) (judge.Verdict, error) {
	cmd := Command()
	var stdout bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return judge.Verdict{}, err
	}
	var v judge.Verdict
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &v))
	return v, nil
}

func TestJudgeCommand(t *testing.T) {
	v, err := runJudge(t, request)
	require.NoError(t, err)
	require.Equal(t, judge.Verdict{IsCorrect: true, Message: "results match", Status: judge.Accepted}, v)
}

func TestJudgeCommandFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.json")
	blocked := strings.Replace(request, "select name from people where age > 30;", "DELETE FROM people", 1)
	require.NoError(t, os.WriteFile(path, []byte(blocked), 0o600))

	v, err := runJudge(t, "", "--request", path, "--isolation", "scratch")
	require.NoError(t, err)
	require.True(t, v.IsSafetyBlocked)
	require.Equal(t, judge.SafetyBlocked, v.Status)
	require.Contains(t, v.Message, "DELETE")
}

func TestJudgeCommandErrors(t *testing.T) {
	_, err := runJudge(t, "not json")
	require.ErrorContains(t, err, "error decoding request")

	_, err = runJudge(t, request, "--dsn", "oracle://x")
	require.Error(t, err)

	_, err = runJudge(t, request, "--isolation", "none")
	require.Error(t, err)
}
