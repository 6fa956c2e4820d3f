// Package sheet reads uploaded contribution workbooks and builds export
// workbooks. Imports are lenient about layout: the header row is located by
// its column titles, so leading title/blank rows in the source files are fine.
package sheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// PersonRow is one parsed line of a contribution spreadsheet.
type PersonRow struct {
	Name       string
	IDNumber   string
	Department string
	Base       decimal.Decimal // contribution base
	Amount     decimal.Decimal // payable amount
}

// Column header keywords recognized in uploaded workbooks. The files come
// from several bureau export formats, so each field accepts aliases.
var headerAliases = map[string][]string{
	"name":       {"姓名"},
	"idNumber":   {"证件号码", "身份证号", "证件号"},
	"department": {"部门", "科室"},
	"base":       {"缴费基数", "基数"},
	"amount":     {"应缴金额", "缴费金额", "金额"},
}

// headerSearchRows caps how deep we look for the header row.
const headerSearchRows = 10

// ParseContributionSheet reads the first worksheet of an xlsx workbook and
// returns its person rows. Name, id number and amount columns are required;
// department and base are optional. Rows with an empty name cell are skipped
// (bureau exports end with total/blank lines).
func ParseContributionSheet(r io.Reader) ([]PersonRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	headerIdx, cols := locateHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row with 姓名/证件号码/金额 columns found")
	}

	parsed := []PersonRow{}
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		name := strings.TrimSpace(cell(row, cols["name"]))
		if name == "" {
			continue
		}

		pr := PersonRow{
			Name:     name,
			IDNumber: strings.TrimSpace(cell(row, cols["idNumber"])),
		}
		if c, ok := cols["department"]; ok {
			pr.Department = strings.TrimSpace(cell(row, c))
		}
		if pr.IDNumber == "" {
			return nil, fmt.Errorf("row %d: missing id number", i+1)
		}

		if c, ok := cols["base"]; ok {
			pr.Base, err = parseAmount(cell(row, c))
			if err != nil {
				return nil, fmt.Errorf("row %d: contribution base: %w", i+1, err)
			}
		}
		pr.Amount, err = parseAmount(cell(row, cols["amount"]))
		if err != nil {
			return nil, fmt.Errorf("row %d: payable amount: %w", i+1, err)
		}

		parsed = append(parsed, pr)
	}

	if len(parsed) == 0 {
		return nil, fmt.Errorf("workbook contains no data rows")
	}
	return parsed, nil
}

// locateHeader scans the leading rows for one that carries the required
// column titles and returns its index plus the field→column mapping.
func locateHeader(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > headerSearchRows {
		limit = headerSearchRows
	}

	for i := 0; i < limit; i++ {
		cols := map[string]int{}
		for c, title := range rows[i] {
			title = strings.TrimSpace(title)
			for field, aliases := range headerAliases {
				if _, taken := cols[field]; taken {
					continue
				}
				for _, alias := range aliases {
					if strings.Contains(title, alias) {
						cols[field] = c
						break
					}
				}
			}
		}
		_, hasName := cols["name"]
		_, hasID := cols["idNumber"]
		_, hasAmount := cols["amount"]
		if hasName && hasID && hasAmount {
			return i, cols
		}
	}
	return -1, nil
}

// cell returns the value at column c, tolerating short rows.
func cell(row []string, c int) string {
	if c < 0 || c >= len(row) {
		return ""
	}
	return row[c]
}

// parseAmount converts a cell to a decimal, accepting thousand separators
// and currency prefixes that show up in bureau exports. Empty cells are zero.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "￥")
	s = strings.TrimPrefix(s, "¥")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	return d, nil
}
