package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractProductText_KeepsStructure(t *testing.T) {
	html := `<html><head><title>Ledgerly | Close faster</title></head>
	<body>
		<nav>Pricing Docs Login</nav>
		<main>
			<h1>Ledgerly</h1>
			<p>Reconciles invoices across <b>every</b> ERP.</p>
			<h2>Features</h2>
			<ul>
				<li>Invoice matching</li>
				<li><p>Audit trail</p>
					<ul><li>SOC 2 exports</li></ul>
				</li>
			</ul>
			<p>Line one<br>Line two</p>
		</main>
		<footer>Copyright</footer>
	</body></html>`

	text, err := ExtractProductText(html)
	require.NoError(t, err)
	assert.Equal(t, "# Ledgerly\n"+
		"Reconciles invoices across every ERP.\n"+
		"\n"+
		"## Features\n"+
		"- Invoice matching\n"+
		"- Audit trail\n"+
		"  - SOC 2 exports\n"+
		"Line one\n"+
		"Line two", text)
}

func TestExtractProductText_TitleWhenNoHeading(t *testing.T) {
	html := `<html><head><title> Ledgerly   pricing </title></head>
	<body><main><p>Starter and Growth plans.</p></main></body></html>`

	text, err := ExtractProductText(html)
	require.NoError(t, err)
	assert.Equal(t, "# Ledgerly pricing\n\nStarter and Growth plans.", text)
}

func TestExtractProductText_SelectorsAndNoise(t *testing.T) {
	html := `<html><body>
		<div class="sidebar">Sidebar junk</div>
		<div class="newsletter">Subscribe now</div>
		<div class="product-description">
			<h2>Ledgerly</h2>
			<p>Reconciles invoices across ERPs</p>
			<div role="dialog">Book a demo</div>
		</div>
	</body></html>`

	text, err := ExtractProductText(html)
	require.NoError(t, err)
	assert.Equal(t, "## Ledgerly\nReconciles invoices across ERPs", text)
}

func TestExtractMainText_FallbackToBody(t *testing.T) {
	text, err := ExtractMainText(`<html><body><div>Some   content here.</div><script>x()</script></body></html>`, []string{"main"})
	require.NoError(t, err)
	assert.Equal(t, "Some content here.", text)
}

func TestExtractMainText_TableCells(t *testing.T) {
	html := `<html><body><main><table>
		<tr><th>Plan</th><th>Price</th></tr>
		<tr><td>Starter</td><td>$99</td></tr>
	</table></main></body></html>`

	text, err := ExtractMainText(html, []string{"main"})
	require.NoError(t, err)
	assert.Equal(t, "Plan Price\nStarter $99", text)
}

func TestProductPageSelectors(t *testing.T) {
	selectors := ProductPageSelectors()
	assert.Equal(t, "main", selectors[0])
	assert.Contains(t, selectors, ".product-description")
	assert.Contains(t, ProductNoiseSelectors(), ".newsletter")
}
