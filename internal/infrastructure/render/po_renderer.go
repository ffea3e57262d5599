// Package render produces purchase order documents.
package render

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

// Config holds document branding
type Config struct {
	CompanyName string
}

// PDFRenderer implements port.DocumentRenderer with gofpdf and stores
// the result in a blob store
type PDFRenderer struct {
	blobs  port.BlobStore
	cfg    Config
	logger *zap.Logger
}

// NewPDFRenderer constructs a PDF renderer
func NewPDFRenderer(blobs port.BlobStore, cfg Config, logger *zap.Logger) *PDFRenderer {
	return &PDFRenderer{blobs: blobs, cfg: cfg, logger: logger}
}

// Render draws the order and returns the stored document reference
func (r *PDFRenderer) Render(ctx context.Context, order *entity.PurchaseOrder, request *entity.PurchaseRequest) (string, error) {
	content, err := r.draw(order, request)
	if err != nil {
		return "", err
	}

	ref, err := r.blobs.Store(ctx, content, "application/pdf")
	if err != nil {
		return "", fmt.Errorf("store po document: %w", err)
	}

	r.logger.Info("Purchase order rendered",
		zap.String("po_number", order.PONumber),
		zap.String("ref", ref),
		zap.Int("size", len(content)))
	return ref, nil
}

func (r *PDFRenderer) draw(order *entity.PurchaseOrder, request *entity.PurchaseRequest) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if r.cfg.CompanyName != "" {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, tr(r.cfg.CompanyName), "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "PURCHASE ORDER", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"PO Number", order.PONumber},
		{"Date", order.CreatedAt.Format("2006-01-02")},
		{"Vendor", order.Vendor},
		{"Request", fmt.Sprintf("#%d %s", request.ID, request.Title)},
		{"Requested by", request.CreatedBy},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)

	widths := []float64{90, 20, 35, 35}
	headers := []string{"Description", "Qty", "Unit Price", "Line Total"}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, item := range order.Items {
		pdf.CellFormat(widths[0], 7, tr(item.Description), "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, strconv.Itoa(item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 7, item.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, item.Total().StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 8, order.TotalAmount.StringFixed(2), "1", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var _ port.DocumentRenderer = (*PDFRenderer)(nil)
