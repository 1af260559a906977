package matching

import (
	"encoding/json"
	"testing"
)

// TokenSet принимает три исторических представления: список, множество
// и строку с пробелами
func TestTokenSetUnmarshalForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Список", `["coca", "cola"]`},
		{"Множество", `{"coca": true, "cola": true}`},
		{"Строка", `"coca cola"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts TokenSet
			if err := json.Unmarshal([]byte(tt.input), &ts); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if !ts.Contains("coca") || !ts.Contains("cola") {
				t.Errorf("токены не разобраны: %v", ts)
			}
		})
	}
}

func TestTokenSetMarshalSorted(t *testing.T) {
	ts := TokenSet{"cola": true, "coca": true, "classic": true}
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["classic","coca","cola"]` {
		t.Errorf("Marshal = %s, ожидался отсортированный список", data)
	}
}

func TestTokenSetOverlap(t *testing.T) {
	a := TokenSet{"coca": true, "cola": true, "classic": true}
	b := TokenSet{"cola": true, "zero": true}

	if got := a.Overlap(b); got != 1 {
		t.Errorf("Overlap = %d, want 1", got)
	}
	if got := b.Overlap(a); got != 1 {
		t.Errorf("Overlap не симметричен: %d", got)
	}
	if got := a.Overlap(nil); got != 0 {
		t.Errorf("Overlap с пустым = %d, want 0", got)
	}
}

func TestProductRecordCandidate(t *testing.T) {
	rec := ProductRecord{ID: "p1", Name: "Cola", BrandName: "Coca-Cola", Variety: "Classic", Size: "1L", Category: "drinks"}
	cand := rec.Candidate()

	if cand.Name != rec.Name || cand.BrandName != rec.BrandName ||
		cand.Variety != rec.Variety || cand.Size != rec.Size {
		t.Errorf("Candidate() = %+v", cand)
	}
}
