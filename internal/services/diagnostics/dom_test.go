package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeDOM(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title> NyaoVim </title></head>
<body>
  <neovim-editor id="nyaovim-editor">
    <neovim-screen></neovim-screen>
    <neovim-cursor></neovim-cursor>
  </neovim-editor>
  <div class="plain"></div>
  <popup-tooltip></popup-tooltip>
  <popup-tooltip id="second"></popup-tooltip>
</body>
</html>`

	summary, err := SummarizeDOM(html)
	require.NoError(t, err)

	assert.Equal(t, "NyaoVim", summary.Title)
	require.Len(t, summary.Elements, 4)
	assert.Equal(t, "neovim-cursor", summary.Elements[0].Tag)
	assert.Equal(t, "neovim-editor", summary.Elements[1].Tag)
	assert.Equal(t, []string{"nyaovim-editor"}, summary.Elements[1].IDs)
	assert.Equal(t, "popup-tooltip", summary.Elements[3].Tag)
	assert.Equal(t, 2, summary.Elements[3].Count)

	assert.True(t, summary.Has("neovim-editor"))
	assert.False(t, summary.Has("div"))
}

func TestSummarizeDOM_NoCustomElements(t *testing.T) {
	summary, err := SummarizeDOM(`<html><body><p>blank</p></body></html>`)
	require.NoError(t, err)
	assert.Empty(t, summary.Elements)
	assert.Contains(t, summary.String(), "custom elements: none")
}
