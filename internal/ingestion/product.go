// Package ingestion turns an operator-supplied product description (a file,
// a URL or inline text) into cleaned text ready for the research stage.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/fetch"
)

var (
	// ErrEmptyInput is returned when no usable text remains after cleaning.
	ErrEmptyInput = errors.New("product description is empty")
	// ErrHTTPRequestFailed is returned when the product page cannot be fetched.
	ErrHTTPRequestFailed = errors.New("HTTP request failed")
	// ErrContentExtractionFailed is returned when HTML cannot be parsed.
	ErrContentExtractionFailed = errors.New("content extraction failed")
)

// Product is a cleaned product description and where it came from.
type Product struct {
	Text     string
	Metadata *Metadata
}

// Options configures URL ingestion.
type Options struct {
	// UseBrowser enables the headless render fallback for thin pages.
	UseBrowser bool
	Verbose    bool
	Fetch      *fetch.Options
	Render     fetch.Renderer // defaults to fetch.Render
	Now        func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// FromText cleans inline text.
func FromText(text string, now time.Time) (*Product, error) {
	return newProduct(text, SourceText, "", now)
}

// MaxFileBytes is the largest product description file accepted.
const MaxFileBytes = 50 << 20

// SupportedExtensions lists the file types FromFile reads.
var SupportedExtensions = []string{".txt", ".md", ".markdown"}

// FromFile reads and cleans a local text or markdown file.
func FromFile(path string, now time.Time) (*Product, error) {
	if err := ValidateFile(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	// The file may have grown since it was checked.
	if len(content) > MaxFileBytes {
		return nil, fmt.Errorf("file too large. Maximum size is %dMB", MaxFileBytes>>20)
	}
	return newProduct(string(content), SourceFile, path, now)
}

// ValidateFile checks that path is a non-empty regular file of a supported
// type no larger than MaxFileBytes.
func ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %w", err)
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}
	if info.Size() > MaxFileBytes {
		return fmt.Errorf("file too large (%.1fMB). Maximum size is %dMB",
			float64(info.Size())/1024/1024, MaxFileBytes>>20)
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return nil
		}
	}
	return fmt.Errorf("unsupported file format: %s. Supported formats: %s",
		ext, strings.Join(SupportedExtensions, ", "))
}

// FromURL fetches a product page and extracts its main text. When the
// extracted text is too thin and UseBrowser is set, the page is rendered in a
// headless browser and extraction is repeated on the rendered HTML.
func FromURL(ctx context.Context, urlStr string, opts Options) (*Product, error) {
	if err := fetch.ValidateURL(urlStr); err != nil {
		return nil, err
	}

	result, err := fetch.URL(ctx, urlStr, opts.Fetch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHTTPRequestFailed, err)
	}
	if opts.Verbose {
		log.Printf("[INGEST] Fetched %s: %d bytes (%s)", urlStr, len(result.HTML), result.ContentType)
	}

	if result.IsPlainText() {
		return newProduct(result.HTML, SourceURL, urlStr, opts.now())
	}

	text, err := fetch.ExtractProductText(result.HTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContentExtractionFailed, err)
	}
	if opts.Verbose {
		log.Printf("[INGEST] Extracted text: %d chars", len(text))
	}

	rendered := false
	if opts.UseBrowser && fetch.ShouldUseBrowser(text) {
		render := opts.Render
		if render == nil {
			render = fetch.Render
		}
		if opts.Verbose {
			log.Printf("[INGEST] Content too short (%d chars < %d), rendering in browser", len(text), fetch.MinContentLength)
		}
		html, renderErr := render(ctx, urlStr, fetch.RenderOptions{Verbose: opts.Verbose})
		switch {
		case renderErr != nil:
			log.Printf("[INGEST] Browser rendering failed, using fetched content: %v", renderErr)
		default:
			if browserText, extractErr := fetch.ExtractProductText(html); extractErr != nil {
				log.Printf("[INGEST] Browser content extraction failed: %v", extractErr)
			} else if len(browserText) > len(text) {
				text = browserText
				rendered = true
			}
		}
	}

	product, err := newProduct(text, SourceURL, urlStr, opts.now())
	if err != nil {
		return nil, err
	}
	product.Metadata.Rendered = rendered
	return product, nil
}

func newProduct(raw, kind, location string, now time.Time) (*Product, error) {
	cleaned := CleanText(raw)
	if cleaned == "" {
		return nil, ErrEmptyInput
	}
	return &Product{Text: cleaned, Metadata: NewMetadata(cleaned, kind, location, now)}, nil
}
