package grade

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/miescuela/core/grid"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheetName = "Grades"
	defaultSheet    = "Sheet1"
)

var filenameRegex = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func exportFilename(title string) string {
	name := strings.Trim(filenameRegex.ReplaceAllString(title, "_"), "_")
	if name == "" {
		name = "sheet"
	}
	return name + ".xlsx"
}

// ExportFilename is the attachment name of the sheet's XLSX export.
func (sh *Sheet) ExportFilename() string {
	return exportFilename(sh.Title)
}

// ExportSheet renders the sheet's current view, pending changes included, as an XLSX workbook.
// Number columns are written as numbers.
func (svc *Service) ExportSheet(sh *Sheet) (*bytes.Buffer, error) {
	sh.mu.Lock()
	v := sh.grid.View()
	title := sh.Title
	sh.mu.Unlock()

	return exportView(title, v)
}

func exportView(title string, v grid.View) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, exportSheetName); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: title}); err != nil {
		return nil, errors.Wrap(err, "setting properties")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}

	for i, col := range v.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, errors.Wrap(err, "writing header")
		}
		if err = f.SetCellValue(exportSheetName, cell, columnHeader(col)); err != nil {
			return nil, errors.Wrapf(err, "writing header %s", cell)
		}
	}
	if len(v.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(v.Columns), 1)
		if err = f.SetCellStyle(exportSheetName, "A1", last, bold); err != nil {
			return nil, errors.Wrap(err, "styling header")
		}
	}

	line := 2
	for _, r := range v.Rows {
		for i, c := range r.Cells {
			cell, err := excelize.CoordinatesToCellName(i+1, line)
			if err != nil {
				return nil, errors.Wrap(err, "writing row")
			}
			if err = f.SetCellValue(exportSheetName, cell, cellValue(v.Columns[i], c.Value)); err != nil {
				return nil, errors.Wrapf(err, "writing cell %s", cell)
			}
		}
		line++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}
	return buf, nil
}

func columnHeader(col grid.Column) string {
	if col.Date == "" {
		return col.Label
	}
	return col.Label + " (" + col.Date + ")"
}

func cellValue(col grid.Column, value string) interface{} {
	if col.Type != grid.FieldNumber || strings.TrimSpace(value) == "" {
		return value
	}
	if f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(value), ",", ".", 1), 64); err == nil {
		return f
	}
	return value
}
