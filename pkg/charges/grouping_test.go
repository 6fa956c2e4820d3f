package charges

import "testing"

func TestArrangeBaseBeforeAdjustment(t *testing.T) {
	entries := []Entry{
		{Name: "张伟", IDNumber: "110101199001011234", IsAdjustment: true},
		{Name: "张伟", IDNumber: "110101199001011234", IsAdjustment: false},
	}

	got := Arrange(entries)
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	// base row (input index 1) must come first and be the only flagged row
	if got[0].Index != 1 || !got[0].FirstInGroup || got[0].Sequence != 1 {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].Index != 0 || got[1].FirstInGroup || got[1].Sequence != 0 {
		t.Fatalf("second=%+v", got[1])
	}
}

func TestArrangeSequencePerGroup(t *testing.T) {
	entries := []Entry{
		{Name: "张伟", IDNumber: "1101", IsAdjustment: false},
		{Name: "李娜", IDNumber: "2202", IsAdjustment: false},
		{Name: "张伟", IDNumber: "1101", IsAdjustment: true},
		{Name: "李娜", IDNumber: "2202", IsAdjustment: true},
		{Name: "王强", IDNumber: "3303", IsAdjustment: false},
	}

	got := Arrange(entries)
	if len(got) != 5 {
		t.Fatalf("len=%d", len(got))
	}

	var seqs []int
	for _, p := range got {
		if p.FirstInGroup {
			seqs = append(seqs, p.Sequence)
		}
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("seqs=%v", seqs)
	}

	// groups appear in first-seen order: 张伟's rows, then 李娜's, then 王强's
	wantOrder := []int{0, 2, 1, 3, 4}
	for i, p := range got {
		if p.Index != wantOrder[i] {
			t.Fatalf("order[%d]=%d, want %d", i, p.Index, wantOrder[i])
		}
	}
}

func TestArrangeSameNameDifferentID(t *testing.T) {
	entries := []Entry{
		{Name: "张伟", IDNumber: "1101"},
		{Name: "张伟", IDNumber: "9909"},
	}
	got := Arrange(entries)
	if !got[0].FirstInGroup || !got[1].FirstInGroup {
		t.Fatalf("distinct id numbers must form distinct groups: %+v", got)
	}
	if got[1].Sequence != 2 {
		t.Fatalf("seq=%d", got[1].Sequence)
	}
}

func TestMatchesFilter(t *testing.T) {
	e := Entry{Name: "Zhang Wei", IDNumber: "110101199001011234", Department: "财务部"}

	cases := []struct {
		name       string
		search     string
		department string
		want       bool
	}{
		{"no filters", "", "", true},
		{"all sentinel", "", AllDepartments, true},
		{"name case-insensitive", "zhang", "", true},
		{"id substring", "19900101", "", true},
		{"search miss", "wang", "", false},
		{"department substring", "", "财务", true},
		{"department miss", "", "人事", false},
		{"search hit department miss", "zhang", "人事", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchesFilter(e, tc.search, tc.department); got != tc.want {
				t.Fatalf("got=%v", got)
			}
		})
	}
}

func TestArrangeFilteredIndexMapping(t *testing.T) {
	entries := []Entry{
		{Name: "李娜", IDNumber: "2202", Department: "人事部"},
		{Name: "张伟", IDNumber: "1101", Department: "财务部"},
		{Name: "张伟", IDNumber: "1101", Department: "财务部", IsAdjustment: true},
	}

	got := ArrangeFiltered(entries, "张伟", AllDepartments)
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Index != 1 || got[1].Index != 2 {
		t.Fatalf("indices=%d,%d", got[0].Index, got[1].Index)
	}
	if !got[0].FirstInGroup || got[0].Sequence != 1 {
		t.Fatalf("first=%+v", got[0])
	}
}
