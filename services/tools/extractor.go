// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools holds the pipeline's non-model collaborators: PDF text
// extraction, report rendering, and building-code lookup.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor turns an estimate PDF into plain text for the estimate
// agent. Implementations must be safe for concurrent use.
type Extractor interface {
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}

// ErrEmptyPDF is returned when the document contains no extractable
// text, typically a scan without an OCR layer.
var ErrEmptyPDF = errors.New("no extractable text in pdf")

// PDFExtractor extracts embedded text from PDF documents. Scanned
// estimates without a text layer are rejected; OCR is out of scope.
type PDFExtractor struct{}

var _ Extractor = (*PDFExtractor)(nil)

// NewPDFExtractor returns a stateless PDF text extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText implements Extractor.
func (e *PDFExtractor) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	if len(pdfBytes) == 0 {
		return "", errors.New("empty pdf payload")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyPDF
	}
	return text, nil
}
