// Package export writes purchase order registers as spreadsheets.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

const sheetName = "Purchase Orders"

var registerHeaders = []string{
	"PO Number", "Request ID", "Vendor", "Items", "Total Amount", "Render Status", "Document", "Created At",
}

// XLSXRegister implements port.RegisterWriter with excelize
type XLSXRegister struct {
	companyName string
}

// NewXLSXRegister creates a register writer
func NewXLSXRegister(companyName string) *XLSXRegister {
	return &XLSXRegister{companyName: companyName}
}

// ContentType is the MIME type of the produced workbook
func (x *XLSXRegister) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Write renders one row per order under a header row
func (x *XLSXRegister) Write(orders []*entity.PurchaseOrder) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	row := 1
	if x.companyName != "" {
		if err := f.SetCellValue(sheetName, "A1", x.companyName); err != nil {
			return nil, fmt.Errorf("failed to write title: %w", err)
		}
		row = 3
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if err := x.setRow(f, row, toCells(registerHeaders)); err != nil {
		return nil, err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(registerHeaders), row)
	if err := f.SetCellStyle(sheetName, first, last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for _, order := range orders {
		row++
		total, _ := order.TotalAmount.Float64()
		cells := []interface{}{
			order.PONumber,
			order.RequestID,
			order.Vendor,
			len(order.Items),
			total,
			string(order.RenderStatus),
			order.POFile,
			order.CreatedAt.Format("2006-01-02 15:04"),
		}
		if err := x.setRow(f, row, cells); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("failed to size columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (x *XLSXRegister) setRow(f *excelize.File, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

var _ port.RegisterWriter = (*XLSXRegister)(nil)
