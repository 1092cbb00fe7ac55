package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrinter(t *testing.T) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out, errOut bytes.Buffer
	return New(&out, &errOut), &out, &errOut
}

func TestSuccess(t *testing.T) {
	p, out, _ := newTestPrinter(t)
	p.Success("Created %d items in %s", 5, "database")
	assert.Equal(t, "✓ Created 5 items in database\n", out.String())
}

func TestErrorAndWarnGoToStderr(t *testing.T) {
	p, out, errOut := newTestPrinter(t)
	p.Error("failed: %s", "boom")
	p.Warn("careful")

	assert.Empty(t, out.String())
	assert.Equal(t, "✗ failed: boom\n⚠ careful\n", errOut.String())
}

func TestInfoAndPlain(t *testing.T) {
	p, out, _ := newTestPrinter(t)
	p.Info("path: %s", "relay")
	p.Plain("100%% done")
	assert.Equal(t, "path: relay\n100% done\n", out.String())
}

func TestJSON(t *testing.T) {
	p, out, _ := newTestPrinter(t)
	require.NoError(t, p.JSON(map[string]any{"ok": true, "html": "<b>"}))

	assert.Contains(t, out.String(), "  \"ok\": true")
	assert.Contains(t, out.String(), "<b>")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
}

func TestTable(t *testing.T) {
	_, _, _ = newTestPrinter(t)
	table := NewTable([]string{"NAME", "RELAY"})
	table.AddRow([]string{"default", "http://localhost:8080"})
	table.AddRow([]string{"prod", "https://relay.example.com", "ignored"})

	var buf bytes.Buffer
	table.Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME     RELAY"))
	assert.True(t, strings.HasPrefix(lines[1], "-------  -----"))
	assert.Contains(t, lines[3], "https://relay.example.com")
	assert.NotContains(t, buf.String(), "ignored")
}

func TestNewDefaultsWriters(t *testing.T) {
	p := New(nil, nil)
	assert.NotNil(t, p.Out)
	assert.NotNil(t, p.Err)
}
