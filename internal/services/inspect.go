package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"github.com/Lllllllleong/docsupervisor/internal/models"
)

// inspectPDF counts the pages of a PDF source whose OCR output did not
// report them. An unreadable PDF yields 0; OCR decides whether the document
// is usable, not this check. Cancellation is returned.
func (e *TextExtractor) inspectPDF(ctx context.Context, source models.Location, logCtx zerolog.Logger) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	obj, err := e.store.Get(ctx, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		logCtx.Warn().Err(err).Msg("Could not fetch PDF for inspection")
		return 0, nil
	}
	pageCount, err := PDFPageCount(obj.Data)
	if err != nil {
		logCtx.Warn().Err(err).Msg("Could not read PDF page count")
		return 0, nil
	}
	logCtx.Info().Int("pageCount", pageCount).Msg("PDF inspected")
	return pageCount, nil
}

// PDFPageCount reads the page count of a PDF with relaxed validation.
func PDFPageCount(data []byte) (n int, err error) {
	// pdfcpu can panic on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdfcpu: %v", r)
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}
