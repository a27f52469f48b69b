// Package export renders the currently materialized grid page as an Excel
// workbook. It acts only on rows already loaded client-side; it never
// triggers a server-side unbounded export.
package export

import (
	"fmt"
	"time"

	"usergrid/internal/domain"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Users"

// SnapshotName returns a unique file name for one export snapshot.
func SnapshotName(now time.Time) string {
	return fmt.Sprintf("users-%s-%s.xlsx", now.Format("20060102-150405"), uuid.NewString()[:8])
}

// Users renders rows against the operator's visible column layout, one
// workbook column per visible grid column, in layout order.
func Users(columns []domain.ColumnDef, rows []*domain.User) ([]byte, error) {
	f := excelize.NewFile()
	// don't defer Close: WriteTo needs the file open

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	visible := make([]domain.ColumnDef, 0, len(columns))
	for _, c := range columns {
		if c.Visible {
			visible = append(visible, c)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for col, c := range visible {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, c.Label); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("convert column number: %w", err)
		}
		// grid widths are in px-ish units, excel wants characters
		if err := f.SetColWidth(sheetName, name, name, float64(c.Width)/7); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for rowIdx, u := range rows {
		row := rowIdx + 2
		for col, c := range visible {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, fieldValue(u, c.Field)); err != nil {
				f.Close()
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func fieldValue(u *domain.User, field string) any {
	switch field {
	case "user_account":
		return u.UserAccount
	case "name":
		return u.DisplayName()
	case "email":
		return u.Email
	case "phone":
		return u.Phone
	case "company":
		return u.Company
	case "role":
		return string(u.Role)
	case "is_active":
		return u.IsActive
	case "is_online":
		return u.IsOnline
	case "last_login_at":
		if u.LastLoginAt == nil {
			return ""
		}
		return u.LastLoginAt.Format(time.RFC3339)
	case "date_joined":
		return u.DateJoined.Format(time.RFC3339)
	default:
		return ""
	}
}
