// Package receipts extracts payment data from inbound PDF documents.
// The extraction is pattern-based: PDF text streams usually carry the
// printable amounts and names verbatim, which is enough to pre-fill a
// sale record for human review.
package receipts

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

var (
	valuePattern = regexp.MustCompile(`(?:R\$\s*)?(\d{1,3}(?:\.\d{3})*,\d{2})`)
	datePattern  = regexp.MustCompile(`\d{2}[/.-]\d{2}[/.-]\d{4}`)
	// Anchored to line starts so prose like "Comprovante de ..." does
	// not shadow the labeled payer field.
	payerPattern = regexp.MustCompile(`(?im)^\s*(?:Pagador|Nome|Origem|De)\b[:\s]+([A-Za-zÀ-ÿ][A-Za-zÀ-ÿ .'-]{2,60})`)
)

// Extractor pulls value, date, and payer out of a receipt document.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a receipt extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract scans the raw document bytes for a monetary value, a date,
// and a payer name. A receipt is valid when at least the value is
// present.
func (e *Extractor) Extract(_ context.Context, data []byte) (domain.Receipt, error) {
	text := string(data)

	var receipt domain.Receipt
	if m := valuePattern.FindStringSubmatch(text); m != nil {
		receipt.Value = m[1]
		receipt.IsValid = true
	}
	if m := datePattern.FindString(text); m != "" {
		receipt.Date = m
	}
	if m := payerPattern.FindStringSubmatch(text); m != nil {
		receipt.Payer = strings.TrimSpace(m[1])
	}

	e.logger.Info("receipt extraction finished",
		"valid", receipt.IsValid, "value", receipt.Value, "date", receipt.Date)
	return receipt, nil
}
