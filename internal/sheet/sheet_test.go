package sheet

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes rows to a fresh single-sheet workbook and returns
// the serialized bytes.
func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestParseContributionSheet(t *testing.T) {
	buf := buildWorkbook(t, [][]interface{}{
		{"某单位2024年6月养老保险缴费明细"}, // title row above the header
		{"姓名", "证件号码", "部门", "缴费基数", "应缴金额"},
		{"张伟", "110101199001011234", "财务部", "12000", "960.00"},
		{"李娜", "110101199202024321", "人事部", "8,500", "680"},
		{"", "", "", "", ""}, // trailing blank line
	})

	rows, err := ParseContributionSheet(buf)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len=%d", len(rows))
	}

	if rows[0].Name != "张伟" || rows[0].IDNumber != "110101199001011234" {
		t.Fatalf("row0=%+v", rows[0])
	}
	if rows[0].Base.String() != "12000" || rows[0].Amount.String() != "960" {
		t.Fatalf("row0 amounts base=%s amount=%s", rows[0].Base, rows[0].Amount)
	}
	if rows[1].Base.String() != "8500" {
		t.Fatalf("thousand separator not stripped: %s", rows[1].Base)
	}
	if rows[1].Department != "人事部" {
		t.Fatalf("department=%q", rows[1].Department)
	}
}

func TestParseContributionSheetOptionalColumns(t *testing.T) {
	buf := buildWorkbook(t, [][]interface{}{
		{"姓名", "证件号码", "应缴金额"},
		{"张伟", "110101199001011234", "100.50"},
	})

	rows, err := ParseContributionSheet(buf)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rows[0].Department != "" || !rows[0].Base.IsZero() {
		t.Fatalf("row=%+v", rows[0])
	}
	if rows[0].Amount.String() != "100.5" {
		t.Fatalf("amount=%s", rows[0].Amount)
	}
}

func TestParseContributionSheetErrors(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		buf := buildWorkbook(t, [][]interface{}{
			{"just", "some", "cells"},
			{"1", "2", "3"},
		})
		if _, err := ParseContributionSheet(buf); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("bad amount", func(t *testing.T) {
		buf := buildWorkbook(t, [][]interface{}{
			{"姓名", "证件号码", "应缴金额"},
			{"张伟", "110101", "not-a-number"},
		})
		if _, err := ParseContributionSheet(buf); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("missing id number", func(t *testing.T) {
		buf := buildWorkbook(t, [][]interface{}{
			{"姓名", "证件号码", "应缴金额"},
			{"张伟", "", "100"},
		})
		if _, err := ParseContributionSheet(buf); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("no data rows", func(t *testing.T) {
		buf := buildWorkbook(t, [][]interface{}{
			{"姓名", "证件号码", "应缴金额"},
		})
		if _, err := ParseContributionSheet(buf); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("not a workbook", func(t *testing.T) {
		if _, err := ParseContributionSheet(bytes.NewReader([]byte("plain text"))); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"960.00", "960", false},
		{"8,500.25", "8500.25", false},
		{"￥120", "120", false},
		{" 42 ", "42", false},
		{"", "0", false},
		{"abc", "", true},
	}

	for _, tc := range cases {
		got, err := parseAmount(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseAmount(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseAmount(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parseAmount(%q)=%s, want %s", tc.in, got, tc.want)
		}
	}
}
