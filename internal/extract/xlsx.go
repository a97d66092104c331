package extract

import (
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSX treats every sheet as a page: one line per row, cells separated by
// tabs, prefixed with the sheet name.
func XLSX(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]string, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}

		var b strings.Builder
		b.WriteString(sheet)
		b.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		if len(rows) == 0 {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, b.String())
	}
	return pages, nil
}
