package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"pdf-query-assistant/internal/logger"
)

// ErrNoExtractableText means every extraction method came back empty for a
// syntactically valid PDF (scanned images, empty pages). Ingestion must
// fail on it; the chunker would only propagate the emptiness.
var ErrNoExtractableText = errors.New("no extractable text in PDF")

// PDFExtractor pulls plain text out of PDF files, trying a native Go reader
// first and falling back to poppler's pdftotext when available.
type PDFExtractor struct {
	maxFileSize int64
}

// NewPDFExtractor returns an extractor that refuses files over maxFileSize
// bytes to keep extraction in-memory.
func NewPDFExtractor(maxFileSize int64) *PDFExtractor {
	return &PDFExtractor{maxFileSize: maxFileSize}
}

// ExtractionResult is the outcome of one text extraction.
type ExtractionResult struct {
	Text           string
	Pages          int
	Method         string
	QualityScore   float64
	WordCount      int
	CharacterCount int
	ProcessingTime time.Duration
}

// ExtractText extracts text from the PDF at filePath. Methods run in order
// of preference; the first result with acceptable quality wins, otherwise
// the best attempt is kept if it clears a minimum bar.
func (e *PDFExtractor) ExtractText(ctx context.Context, filePath string) (*ExtractionResult, error) {
	start := time.Now()

	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}
	if stat.Size() > e.maxFileSize {
		return nil, fmt.Errorf("pdf of %d bytes exceeds the %d byte limit", stat.Size(), e.maxFileSize)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}

	methods := []struct {
		name    string
		extract func(context.Context, []byte) (*ExtractionResult, error)
	}{
		{"go-pdf", e.extractWithGoPDF},
		{"poppler", e.extractWithPoppler},
	}

	var lastErr error
	var bestResult *ExtractionResult

	for _, method := range methods {
		result, err := method.extract(ctx, content)
		if err != nil {
			logger.Debug("Extraction method failed", "method", method.name, "error", err)
			lastErr = err
			continue
		}

		result.Method = method.name
		result.QualityScore = evaluateTextQuality(result.Text)
		result.ProcessingTime = time.Since(start)
		logger.Debug("Extraction attempt", "method", method.name, "chars", len(result.Text), "quality", result.QualityScore)

		if result.QualityScore >= 0.7 {
			return result, nil
		}
		if bestResult == nil || result.QualityScore > bestResult.QualityScore {
			bestResult = result
		}
	}

	if bestResult != nil && bestResult.QualityScore >= 0.3 {
		logger.Warn("Using best-effort extraction", "method", bestResult.Method, "quality", bestResult.QualityScore)
		return bestResult, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all extraction methods failed: %w", lastErr)
	}
	return nil, ErrNoExtractableText
}

// extractWithGoPDF uses the ledongthuc/pdf reader.
func (e *PDFExtractor) extractWithGoPDF(_ context.Context, content []byte) (*ExtractionResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Debug("Page extraction failed", "page", i, "error", err)
			continue
		}
		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n\n")
		}
		textBuilder.WriteString(text)
	}

	extracted := textBuilder.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, ErrNoExtractableText
	}

	result := &ExtractionResult{Text: extracted, Pages: pages}
	analyzeText(result)
	return result, nil
}

// extractWithPoppler shells out to pdftotext when the binary is installed.
func (e *PDFExtractor) extractWithPoppler(ctx context.Context, content []byte) (*ExtractionResult, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available")
	}

	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}

	extracted := stdout.String()
	if strings.TrimSpace(extracted) == "" {
		return nil, ErrNoExtractableText
	}

	result := &ExtractionResult{
		Text: extracted,
		// pdftotext separates pages with form feeds.
		Pages: strings.Count(extracted, "\f") + 1,
	}
	analyzeText(result)
	return result, nil
}

// evaluateTextQuality scores extracted text in [0, 1]. Mostly-alphanumeric
// prose scores high; replacement characters and binary junk pull the score
// down so a garbled extraction loses to a cleaner fallback.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) < 10 {
		return 0.1
	}

	var printable, alphanumeric, corrupted int
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			alphanumeric++
			printable++
		case r == ' ' || r == '\n' || r == '\t' || r == '\f':
			printable++
		case r == '�':
			corrupted++
		case r >= 32 && r <= 126:
			printable++
		case r > 127:
			printable++
		default:
			corrupted++
		}
	}

	total := len([]rune(text))
	score := float64(printable) / float64(total) * 0.5
	alphaRatio := float64(alphanumeric) / float64(total)
	if alphaRatio >= 0.3 {
		score += 0.3
	} else {
		score += alphaRatio
	}
	score -= float64(corrupted) / float64(total) * 2.0
	if len(text) > 100 {
		score += 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// analyzeText fills in word and character counts.
func analyzeText(result *ExtractionResult) {
	result.WordCount = len(strings.Fields(result.Text))
	result.CharacterCount = len(result.Text)
}
