package insurance

import "testing"

func TestClassifyFilename(t *testing.T) {
	cases := []struct {
		name       string
		filename   string
		wantPart   string
		wantScheme string
	}{
		{"unit injury", "单位工伤明细.xlsx", PartUnit, SchemeInjury},
		{"personal pension", "个人养老2024-06.xlsx", PartPersonal, SchemePension},
		{"serious illness beats medical", "个人大额医疗缴费.xlsx", PartPersonal, SchemeSeriousIllness},
		{"mutual aid variant", "单位互助缴费明细.xls", PartUnit, SchemeSeriousIllness},
		{"injury beats pension", "单位工伤养老汇总.xlsx", PartUnit, SchemeInjury},
		{"unemployment beats medical", "失业医疗个人.xlsx", PartPersonal, SchemeUnemployment},
		{"plain medical", "医疗单位6月.xlsx", PartUnit, SchemeMedical},
		{"no part keyword", "养老明细.xlsx", PartUnknown, SchemePension},
		{"nothing recognizable", "report.xlsx", PartUnknown, SchemeUnknown},
		{"unit beats personal", "单位个人混合工伤.xlsx", PartUnit, SchemeInjury},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			part, scheme := ClassifyFilename(tc.filename)
			if part != tc.wantPart || scheme != tc.wantScheme {
				t.Fatalf("part=%q scheme=%q, want %q/%q", part, scheme, tc.wantPart, tc.wantScheme)
			}
		})
	}
}

func TestRequiredCombinations(t *testing.T) {
	if len(RequiredCombinations) != 9 {
		t.Fatalf("len=%d", len(RequiredCombinations))
	}
	for _, c := range RequiredCombinations {
		if c.Part == PartPersonal && c.Scheme == SchemeInjury {
			t.Fatalf("personal injury must not be required")
		}
	}
}

func allNormalFiles() []Coverage {
	files := make([]Coverage, 0, len(RequiredCombinations))
	for _, c := range RequiredCombinations {
		files = append(files, Coverage{Part: c.Part, Scheme: c.Scheme, Kind: KindNormal})
	}
	return files
}

func TestMissingUploads(t *testing.T) {
	t.Run("empty file list misses all nine", func(t *testing.T) {
		if got := MissingUploads(nil); len(got) != 9 {
			t.Fatalf("len=%d", len(got))
		}
	})

	t.Run("full coverage misses none", func(t *testing.T) {
		if got := MissingUploads(allNormalFiles()); len(got) != 0 {
			t.Fatalf("len=%d: %v", len(got), got)
		}
	})

	t.Run("eight of nine names the gap", func(t *testing.T) {
		files := allNormalFiles()
		// drop (unit, injury)
		files = files[:len(files)-1]

		got := MissingUploads(files)
		if len(got) != 1 {
			t.Fatalf("len=%d: %v", len(got), got)
		}
		if got[0].Part != PartUnit || got[0].Scheme != SchemeInjury {
			t.Fatalf("missing=%v", got[0])
		}
	})

	t.Run("adjustment files never count", func(t *testing.T) {
		files := allNormalFiles()[:8]
		files = append(files, Coverage{Part: PartUnit, Scheme: SchemeInjury, Kind: KindAdjustment})

		got := MissingUploads(files)
		if len(got) != 1 || got[0].Scheme != SchemeInjury {
			t.Fatalf("missing=%v", got)
		}
	})

	t.Run("duplicate coverage is harmless", func(t *testing.T) {
		files := append(allNormalFiles(), Coverage{Part: PartUnit, Scheme: SchemePension, Kind: KindNormal})
		if got := MissingUploads(files); len(got) != 0 {
			t.Fatalf("missing=%v", got)
		}
	})
}

func TestReadyToProcess(t *testing.T) {
	if ReadyToProcess(nil) {
		t.Fatalf("empty period must not be processable")
	}
	if !ReadyToProcess(allNormalFiles()) {
		t.Fatalf("fully covered period must be processable")
	}

	files := allNormalFiles()[:8]
	if ReadyToProcess(files) {
		t.Fatalf("period with a missing combination must not be processable")
	}
}
