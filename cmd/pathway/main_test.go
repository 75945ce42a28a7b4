package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const doc = `
user:
  name: Ada
  age: 36
  address:
    city: London
  tags: [math, engines]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func runCLI(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = run(args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), err
}

func TestHelp(t *testing.T) {
	out, _, err := runCLI(t, "", "help", "eval")
	require.NoError(t, err)
	require.Contains(t, out, "eval FLAGS")

	out, _, err = runCLI(t, "", "help")
	require.NoError(t, err)
	require.Contains(t, out, "COMMANDS")

	_, _, err = runCLI(t, "", "help", "serve")
	require.Error(t, err)
}

func TestCommandErrors(t *testing.T) {
	_, stderr, err := runCLI(t, "")
	require.EqualError(t, err, "missing command")
	require.Contains(t, stderr, "USAGE")

	_, _, err = runCLI(t, "", "frobnicate")
	require.EqualError(t, err, `unknown command "frobnicate"`)

	_, _, err = runCLI(t, "", "eval")
	require.EqualError(t, err, "expected exactly one path")

	_, _, err = runCLI(t, "", "eval", "-var", "=1", "x")
	require.Error(t, err)

	_, _, err = runCLI(t, "", "eval", "-strategy", "jit", "x")
	require.ErrorContains(t, err, "unknown strategy")
}

func TestEval(t *testing.T) {
	data := writeFile(t, "doc.yaml", doc)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"property", []string{"eval", "-data", data, "user.address.city"}, "London\n"},
		{"index", []string{"eval", "-data", data, "user.tags[1]"}, "engines\n"},
		{"variable index", []string{"eval", "-data", data, "-var", "i=0", "user.tags[i]"}, "math\n"},
		{"null safe", []string{"eval", "-data", data, "user.?manager.name"}, "null\n"},
		{"map", []string{"eval", "-data", data, "user.address"}, "city: London\n"},
		{"variable", []string{"eval", "-var", "limit=3", "limit"}, "3\n"},
		{"interpreted", []string{"eval", "-data", data, "-strategy", "interpreted", "user.age"}, "36\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, _, err := runCLI(t, "", tc.args...)
			require.NoError(t, err)
			require.Equal(t, tc.want, out)
		})
	}
}

func TestEvalStdin(t *testing.T) {
	out, _, err := runCLI(t, `{"point": {"x": 1, "y": 2}}`, "eval", "-data", "-", "point.y")
	require.NoError(t, err)
	require.Equal(t, "2\n", out)
}

func TestEvalSet(t *testing.T) {
	data := writeFile(t, "doc.yaml", "user:\n  name: Ada\n")
	out, _, err := runCLI(t, "", "eval", "-data", data, "-set", "Paris", "user.city")
	require.NoError(t, err)
	require.Equal(t, "user:\n    city: Paris\n    name: Ada\n", out)
}

func TestEvalFailure(t *testing.T) {
	data := writeFile(t, "doc.yaml", doc)
	_, _, err := runCLI(t, "", "eval", "-data", data, "user.manager.name")
	require.ErrorContains(t, err, "get user.manager.name")
}

func TestBench(t *testing.T) {
	data := writeFile(t, "doc.yaml", doc)
	cfg := writeFile(t, "pathway.yaml", "tiering:\n  threshold: 5\n  timespan: 1m\n")

	out, stderr, err := runCLI(t, "", "-v", "bench", "-data", data, "-config", cfg, "-n", "20", "-workers", "2", "user.address.city")
	require.NoError(t, err)
	require.Contains(t, out, "evaluations  40")
	require.Contains(t, out, "tier         hot")
	require.Contains(t, out, "compiled=1")
	require.Contains(t, stderr, "compiled user.address.city")

	out, _, err = runCLI(t, "", "bench", "-data", data, "-strategy", "interpreted", "-n", "3", "user.name")
	require.NoError(t, err)
	require.Contains(t, out, "tier         interpreted")

	_, _, err = runCLI(t, "", "bench", "-n", "0", "x")
	require.Error(t, err)
}
