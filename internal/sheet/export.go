package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"socialins-backend/internal/models"
	"socialins-backend/pkg/insurance"
)

// WriteSummaryWorkbook builds the per-(scheme, part) summary export.
func WriteSummaryWorkbook(label string, summary []models.PeriodSummary) (*excelize.File, error) {
	f := excelize.NewFile()
	name := "汇总"
	f.SetSheetName(f.GetSheetName(0), name)

	header := []interface{}{"险种", "缴费方", "类型", "人数", "缴费基数合计", "应缴金额合计"}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, s := range summary {
		kind := "正常"
		if s.IsAdjustment {
			kind = "补差"
		}
		row := []interface{}{
			insurance.SchemeDisplayName(s.Scheme),
			insurance.PartDisplayName(s.Part),
			kind,
			s.Headcount,
			s.BaseTotal.InexactFloat64(),
			s.PayableTotal.InexactFloat64(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	f.SetDocProps(&excelize.DocProperties{Title: label + " 社保汇总"})
	return f, nil
}

// WriteChargesWorkbook builds a flat charge export (personal or unit part).
func WriteChargesWorkbook(label, title string, rows []models.ChargeRow) (*excelize.File, error) {
	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), title)

	header := []interface{}{"姓名", "证件号码", "部门", "险种", "缴费基数", "应缴金额", "补差"}
	if err := f.SetSheetRow(title, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, r := range rows {
		adj := ""
		if r.IsAdjustment {
			adj = "是"
		}
		row := []interface{}{
			r.Name,
			r.IDNumber,
			r.Department,
			insurance.SchemeDisplayName(r.Scheme),
			r.Base.InexactFloat64(),
			r.Amount.InexactFloat64(),
			adj,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(title, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	f.SetDocProps(&excelize.DocProperties{Title: label + " " + title})
	return f, nil
}

// WriteChargesDetailWorkbook builds the per-scheme detail export: one
// worksheet per scheme, in the fixed scheme display order. Schemes with no
// rows are omitted.
func WriteChargesDetailWorkbook(label string, rows []models.ChargeRow) (*excelize.File, error) {
	f := excelize.NewFile()
	first := true

	byScheme := map[string][]models.ChargeRow{}
	for _, r := range rows {
		byScheme[r.Scheme] = append(byScheme[r.Scheme], r)
	}

	for _, scheme := range insurance.Schemes {
		schemeRows := byScheme[scheme]
		if len(schemeRows) == 0 {
			continue
		}

		name := insurance.SchemeDisplayName(scheme)
		if first {
			f.SetSheetName(f.GetSheetName(0), name)
			first = false
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("new sheet %q: %w", name, err)
			}
		}

		header := []interface{}{"姓名", "证件号码", "部门", "缴费基数", "应缴金额", "补差"}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		for i, r := range schemeRows {
			adj := ""
			if r.IsAdjustment {
				adj = "是"
			}
			row := []interface{}{
				r.Name, r.IDNumber, r.Department,
				r.Base.InexactFloat64(), r.Amount.InexactFloat64(), adj,
			}
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return nil, fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}

	if first {
		// no rows at all — keep the default sheet so the workbook stays valid
		f.SetSheetName(f.GetSheetName(0), "明细")
	}

	f.SetDocProps(&excelize.DocProperties{Title: label + " 分险种明细"})
	return f, nil
}
