package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_RenderAutoWidth(t *testing.T) {
	tbl := NewTable(
		Column{Name: "formula"},
		Column{Name: "value", Align: AlignRight},
	)
	tbl.AddRow("x**2 + y**2", "2")
	tbl.AddRow("exp(x + y)", "7.389056")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "formula")
	assert.Contains(t, lines[1], "─")
	assert.True(t, strings.HasPrefix(lines[2], "  x**2 + y**2"))
	assert.True(t, strings.HasSuffix(lines[2], "       2"), "right aligned: %q", lines[2])
	assert.True(t, strings.HasSuffix(lines[3], "7.389056"))
}

func TestTable_PadsMissingCellsAndTruncates(t *testing.T) {
	tbl := NewTable(Column{Name: "a", Width: 6}, Column{Name: "b", Width: 3}).
		SetIndent("").
		SetHeaderSeparator(false)
	tbl.AddRow("abcdefghij")

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "abc...    ", lines[1])
}

func TestTable_NoColumns(t *testing.T) {
	assert.Empty(t, NewTable().Render())
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", pad("ab", "ab", 4, AlignLeft))
	assert.Equal(t, "  ab", pad("ab", "ab", 4, AlignRight))
	assert.Equal(t, " ab ", pad("ab", "ab", 4, AlignCenter))
	assert.Equal(t, "abcdef", pad("abcdef", "abcdef", 4, AlignLeft))
}

func TestStyles_KeepText(t *testing.T) {
	for _, s := range []struct {
		name string
		r    func(...string) string
	}{
		{"success", Success.Render},
		{"error", Error.Render},
		{"info", Info.Render},
		{"dim", Dim.Render},
		{"bold", Bold.Render},
		{"heading", Heading.Render},
	} {
		assert.Contains(t, s.r("jacobian"), "jacobian", s.name)
	}
}
