package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

const catalogSheet = "PLC Tags"

var catalogHeader = []string{"Tag", "Full Path", "Data Type"}
var snapshotHeader = []string{"Tag", "Value", "Data Type", "Quality", "Timestamp"}

// CatalogXLSX renders a catalog as a flat spreadsheet: top-level tags
// on their own rows, structure members flattened beneath them with
// dotted paths, an auto filter over the used range, and columns sized
// to their content.
func CatalogXLSX(tags []models.TagDescriptor) ([]byte, error) {
	var rows [][]interface{}
	for _, tag := range sortedCatalog(tags) {
		if tag.DataType == models.DataTypeStruct {
			rows = append(rows, []interface{}{tag.Name, "", typeLabel(&tag)})
			rows = appendMemberRows(rows, tag.Name, tag.Members)
		} else {
			rows = append(rows, []interface{}{tag.Name, tag.Name, typeLabel(&tag)})
		}
	}
	return writeSheet(catalogHeader, rows)
}

func appendMemberRows(rows [][]interface{}, prefix string, members []models.TagDescriptor) [][]interface{} {
	for i := range members {
		m := &members[i]
		path := prefix + "." + m.Name
		if m.DataType == models.DataTypeStruct {
			rows = appendMemberRows(rows, path, m.Members)
			continue
		}
		rows = append(rows, []interface{}{"", path, typeLabel(m)})
	}
	return rows
}

// SnapshotXLSX renders a value snapshot as a spreadsheet.
func SnapshotXLSX(values []models.TagValue) ([]byte, error) {
	var rows [][]interface{}
	for _, v := range sortedSnapshot(values) {
		rendered := ""
		if v.Value != nil {
			rendered = fmt.Sprintf("%v", v.Value)
		}
		rows = append(rows, []interface{}{
			v.TagName, rendered, string(v.DataType), string(v.Quality),
			v.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	return writeSheet(snapshotHeader, rows)
}

func writeSheet(header []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", catalogSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	widths := make([]int, len(header))
	for i, name := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(catalogSheet, cell, name); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
		widths[i] = len(name)
	}
	for row, rowValues := range rows {
		for col, val := range rowValues {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(catalogSheet, cell, val); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", row+1, err)
			}
			if n := len(fmt.Sprintf("%v", val)); n > widths[col] {
				widths[col] = n
			}
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(header), len(rows)+1)
	if err := f.AutoFilter(catalogSheet, "A1:"+last, nil); err != nil {
		return nil, fmt.Errorf("setting auto filter: %w", err)
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width := float64(w + 2)
		if width > 80 {
			width = 80
		}
		if err := f.SetColWidth(catalogSheet, col, col, width); err != nil {
			return nil, fmt.Errorf("sizing column %s: %w", col, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
