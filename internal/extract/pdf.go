package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"lms-assistant-backend/internal/logger"
)

// maxPDFBytes caps in-memory extraction so a pathological upload cannot OOM
// the process.
const maxPDFBytes = 200 << 20

// Result is the outcome of one extraction: the full document text with
// "--- Page N ---" markers between pages, ready for chunking.
type Result struct {
	Text           string
	Pages          int
	WordCount      int
	CharacterCount int
	QualityScore   float64
	ProcessingTime time.Duration
}

// PDFExtractor pulls plain text out of uploaded PDFs.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractFile extracts text from the PDF at path.
func (e *PDFExtractor) ExtractFile(ctx context.Context, path string) (*Result, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}
	if stat.Size() > maxPDFBytes {
		return nil, fmt.Errorf("pdf too large for in-memory extraction: %d bytes", stat.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}
	return e.Extract(ctx, content)
}

// Extract extracts text from in-memory PDF content. Pages that fail to decode
// are skipped with a warning; the document fails only when no page yields
// text.
func (e *PDFExtractor) Extract(ctx context.Context, content []byte) (*Result, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("failed to extract PDF page", "page", i, "error", err)
			continue
		}

		fmt.Fprintf(&sb, "\n\n--- Page %d ---\n", i)
		sb.WriteString(text)
	}

	extracted := sb.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, fmt.Errorf("no text extracted from PDF")
	}

	result := &Result{
		Text:           extracted,
		Pages:          pages,
		WordCount:      len(strings.Fields(extracted)),
		CharacterCount: len(extracted),
		QualityScore:   evaluateTextQuality(extracted),
		ProcessingTime: time.Since(start),
	}

	logger.Info("extracted PDF text",
		"pages", result.Pages, "chars", result.CharacterCount,
		"quality", result.QualityScore)
	return result, nil
}

// evaluateTextQuality scores extracted text in [0,1] from the ratio of
// readable to corrupted characters. Scanned or image-heavy PDFs come out low,
// which callers can surface to the instructor.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) < 10 {
		return 0.1
	}

	var alphanumeric, printable, corrupted int
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t' || r == '\r':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		case r > 127:
			printable++
		}
	}

	total := len([]rune(text))
	score := float64(printable) / float64(total) * 0.4
	if ratio := float64(alphanumeric) / float64(total); ratio >= 0.3 {
		score += 0.3
	} else {
		score += ratio
	}
	score += 0.3 * (1 - float64(corrupted)/float64(total))

	if score > 1 {
		score = 1
	}
	return score
}
