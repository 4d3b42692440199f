package plan

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runPlan(t *testing.T, stdin string, args ...string) (string, string, error) {
	cmd := Command()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPlanCommand(t *testing.T) {
	preview := `{"tables": [{"name": "t", "columns": ["a", 5], "rows": [{"a": 1}]}]}`

	stdout, stderr, err := runPlan(t, preview, "--dialect", "sqlite")
	require.NoError(t, err)
	require.Equal(t, "DROP TABLE IF EXISTS `t`;\n", strings.SplitAfter(stdout, "\n")[0])
	require.Contains(t, stdout, "INSERT INTO `t` (`a`) VALUES\n  (1)\nON CONFLICT DO NOTHING;\n")
	require.Equal(t, "rejected: table 0 (t): column 1 is not a string\n", stderr)
}

func TestPlanCommandNothingToProvision(t *testing.T) {
	stdout, stderr, err := runPlan(t, `{"tables": [{"name": "!!!", "columns": ["a"]}]}`)
	require.NoError(t, err)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "no table survived sanitization")
}

func TestPlanCommandErrors(t *testing.T) {
	_, _, err := runPlan(t, `{}`, "--dialect", "oracle")
	require.Error(t, err)

	_, _, err = runPlan(t, `[1, 2]`)
	require.Error(t, err)
}
