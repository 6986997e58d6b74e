// Package extract turns raw OCR text into sanitized, category-specific
// identity fields using a language model.
package extract

import (
	"context"
	"fmt"
	"strings"

	"docverify/internal/domain"
	"docverify/internal/integrations/llm"
	"docverify/internal/metrics"

	"go.uber.org/zap"
)

// JSONCompleter is satisfied by *llm.Client.
type JSONCompleter interface {
	ExtractJSON(ctx context.Context, systemPrompt, userPrompt string) (llm.Result, error)
}

type Extraction struct {
	Category domain.DocumentCategory
	Fields   domain.ExtractedFields
	// AuditJSON is the JSON text the model returned, kept for audit.
	AuditJSON string
	Warnings  []string
	Attempts  int
	Provider  string
	Model     string
}

type Extractor struct {
	completer JSONCompleter
	validator *fieldValidator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewExtractor(completer JSONCompleter, logger *zap.Logger, m *metrics.Metrics) (*Extractor, error) {
	validator, err := newFieldValidator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{completer: completer, validator: validator, logger: logger, metrics: m}, nil
}

// Extract runs one extraction. Model failures come back as
// *llm.ExtractionFailure; nothing is retried here beyond the client's policy.
func (e *Extractor) Extract(ctx context.Context, req domain.ExtractionRequest) (Extraction, error) {
	systemPrompt, userPrompt, err := BuildPrompts(req)
	if err != nil {
		return Extraction{}, err
	}
	if strings.TrimSpace(req.RawText) == "" {
		return Extraction{}, fmt.Errorf("empty OCR text for %s document", req.Category)
	}

	log := e.logger.With(zap.String("category", string(req.Category)))
	log.Info("extraction started", zap.Int("ocr_chars", len(req.RawText)))

	res, err := e.completer.ExtractJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		outcome := "error"
		if failure, ok := llm.AsExtractionFailure(err); ok {
			outcome = string(failure.Kind)
		}
		e.metrics.Extraction(string(req.Category), outcome)
		log.Error("extraction failed", zap.Error(err))
		return Extraction{}, err
	}

	if extra := UnknownKeys(res.Fields, req.Category); len(extra) > 0 {
		log.Debug("dropping unexpected fields", zap.Strings("keys", extra))
	}
	fields := Sanitize(res.Fields, req.Category)
	if _, ok := fields.Get("name"); !ok {
		log.Warn("name not found in document")
	}
	if _, ok := fields.Get("dob"); !ok {
		log.Warn("dob not found in document")
	}

	warnings := e.validator.Warnings(req.Category, fields)
	if len(warnings) > 0 {
		log.Warn("extracted fields look implausible", zap.Strings("warnings", warnings))
	}

	e.metrics.Extraction(string(req.Category), "ok")
	log.Info("extraction finished",
		zap.Int("attempts", res.Attempts),
		zap.Bool("has_name", fields["name"] != nil),
		zap.Bool("has_dob", fields["dob"] != nil),
		zap.Int64("tokens", res.Usage.TotalTokens()),
	)
	return Extraction{
		Category:  req.Category,
		Fields:    fields,
		AuditJSON: res.Raw,
		Warnings:  warnings,
		Attempts:  res.Attempts,
		Provider:  res.Provider,
		Model:     res.Model,
	}, nil
}
