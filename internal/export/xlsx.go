package export

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"github.com/yakoovad/people-drive/internal/model"
)

const (
	SheetName   = "Applications"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []any{
	"ID", "Kind", "Name", "Leader", "Members", "Email", "Phone",
	"Address", "Department", "Status", "Documents", "Submitted",
}

// XLSX renders apps as a single-sheet workbook, one row per application.
func XLSX(apps []*model.Application) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, errors.Wrap(err, "rename sheet")
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, bold)
	}

	for i, a := range apps {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{
			a.ID,
			string(a.Kind),
			a.DisplayName(),
			a.LeaderName,
			strings.Join(a.Members, ", "),
			a.Email,
			a.Phone,
			a.Address,
			a.Department,
			string(a.Status),
			documentList(a),
			submitted(a),
		}
		if err = f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, errors.Wrapf(err, "write row %d", i+2)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "write workbook")
	}
	return buf.Bytes(), nil
}

func documentList(a *model.Application) string {
	parts := make([]string, 0, len(a.Documents))
	for _, kind := range model.DocumentKinds {
		if ref, ok := a.Documents[kind]; ok {
			parts = append(parts, string(kind)+": "+ref)
		}
	}
	return strings.Join(parts, "\n")
}

func submitted(a *model.Application) string {
	if a.CreatedAt == nil {
		return ""
	}
	return a.CreatedAt.UTC().Format(time.RFC3339)
}
