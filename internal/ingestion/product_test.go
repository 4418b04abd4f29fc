package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `<!DOCTYPE html>
<html>
<body>
<nav>Pricing | Docs | Login</nav>
<main>
<h1>Ledgerly</h1>
<p>Ledgerly reconciles invoices across ERPs for mid-market finance teams.</p>
</main>
<footer>Copyright</footer>
</body>
</html>`

func serve(t *testing.T, contentType, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFromText(t *testing.T) {
	p, err := FromText("  Ledgerly   closes the books  ", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Ledgerly closes the books", p.Text)
	assert.Equal(t, SourceText, p.Metadata.Kind)
}

func TestFromText_Empty(t *testing.T) {
	_, err := FromText(" \n\t\n ", testNow)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product.md")
	require.NoError(t, os.WriteFile(path, []byte("# Ledgerly\r\n\r\n\r\nInvoice   matching"), 0644))

	p, err := FromFile(path, testNow)
	require.NoError(t, err)
	assert.Equal(t, "# Ledgerly\n\nInvoice matching", p.Text)
	assert.Equal(t, path, p.Metadata.Source())
	assert.Equal(t, SourceFile, p.Metadata.Kind)
}

func TestFromFile_NotFound(t *testing.T) {
	p, err := FromFile("/nonexistent/product.md", testNow)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "file not found")
}

func TestFromFile_Rejected(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.md")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	oversized := filepath.Join(dir, "huge.txt")
	require.NoError(t, os.WriteFile(oversized, []byte("x"), 0644))
	require.NoError(t, os.Truncate(oversized, MaxFileBytes+1))

	pdf := filepath.Join(dir, "brochure.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0644))

	subdir := filepath.Join(dir, "notes.md")
	require.NoError(t, os.Mkdir(subdir, 0755))

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"empty file", empty, "file is empty"},
		{"over 50MB", oversized, "file too large (50.0MB). Maximum size is 50MB"},
		{"unsupported extension", pdf, "unsupported file format: .pdf. Supported formats: .txt, .md, .markdown"},
		{"directory", subdir, "not a file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromFile(tt.path, testNow)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromFile_AtSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product.txt")
	require.NoError(t, os.WriteFile(path, []byte("Ledgerly"), 0644))
	require.NoError(t, os.Truncate(path, MaxFileBytes))

	require.NoError(t, ValidateFile(path))
}

func TestFromURL_InvalidURL(t *testing.T) {
	tests := []struct {
		name   string
		urlStr string
	}{
		{"empty URL", ""},
		{"malformed URL", "not-a-url"},
		{"no scheme", "example.com"},
		{"no host", "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromURL(context.Background(), tt.urlStr, Options{})
			var fetchErr *fetch.Error
			assert.ErrorAs(t, err, &fetchErr)
		})
	}
}

func TestFromURL_ExtractsMainContent(t *testing.T) {
	server := serve(t, "text/html", productPage, http.StatusOK)

	p, err := FromURL(context.Background(), server.URL, Options{Now: func() time.Time { return testNow }})
	require.NoError(t, err)

	assert.Contains(t, p.Text, "Ledgerly")
	assert.Contains(t, p.Text, "mid-market finance teams")
	assert.NotContains(t, p.Text, "Login")
	assert.NotContains(t, p.Text, "Copyright")
	assert.Equal(t, server.URL, p.Metadata.Location)
	assert.Equal(t, SourceURL, p.Metadata.Kind)
	assert.False(t, p.Metadata.Rendered)
}

func TestFromURL_PlainText(t *testing.T) {
	server := serve(t, "text/plain; charset=utf-8", "Ledgerly\n\n\n\n<b>not html</b>", http.StatusOK)

	p, err := FromURL(context.Background(), server.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Ledgerly\n\n<b>not html</b>", p.Text)
}

func TestFromURL_HTTPError(t *testing.T) {
	server := serve(t, "text/html", "", http.StatusNotFound)

	_, err := FromURL(context.Background(), server.URL, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPRequestFailed)
	assert.Contains(t, err.Error(), "404")
}

func TestFromURL_BrowserFallback(t *testing.T) {
	shell := `<html><body><div id="root">Loading...</div></body></html>`
	server := serve(t, "text/html", shell, http.StatusOK)
	rendered := "<html><body><main><h1>Ledgerly</h1><p>" + strings.Repeat("Automated reconciliation. ", 30) + "</p></main></body></html>"

	var calls int
	opts := Options{
		UseBrowser: true,
		Render: func(_ context.Context, url string, _ fetch.RenderOptions) (string, error) {
			calls++
			assert.Equal(t, server.URL, url)
			return rendered, nil
		},
	}

	p, err := FromURL(context.Background(), server.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, p.Metadata.Rendered)
	assert.Contains(t, p.Text, "Automated reconciliation.")
}

func TestFromURL_BrowserFailureKeepsFetchedText(t *testing.T) {
	server := serve(t, "text/html", `<html><body><main>Ledgerly beta</main></body></html>`, http.StatusOK)

	opts := Options{
		UseBrowser: true,
		Render: func(context.Context, string, fetch.RenderOptions) (string, error) {
			return "", errors.New("chrome not installed")
		},
	}

	p, err := FromURL(context.Background(), server.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, "Ledgerly beta", p.Text)
	assert.False(t, p.Metadata.Rendered)
}

func TestFromURL_NoBrowserWithoutFlag(t *testing.T) {
	server := serve(t, "text/html", `<html><body><main>Short</main></body></html>`, http.StatusOK)

	opts := Options{
		Render: func(context.Context, string, fetch.RenderOptions) (string, error) {
			t.Fatal("renderer must not be called")
			return "", nil
		},
	}

	p, err := FromURL(context.Background(), server.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, "Short", p.Text)
}
