package status

import "testing"

func TestAllOrdered(t *testing.T) {
	items := All()
	if len(items) != 7 {
		t.Fatalf("dictionary size = %d, want 7", len(items))
	}
	for i, s := range items {
		if s.ID != i+1 {
			t.Fatalf("position %d holds id %d", i, s.ID)
		}
	}
	// All must return a copy.
	items[0].Code = "mutated"
	if fresh := All(); fresh[0].Code == "mutated" {
		t.Fatal("All exposes internal state")
	}
}

func TestByCode(t *testing.T) {
	if _, ok := ByCode("production"); !ok {
		t.Fatal("canonical code not found")
	}
	if s, ok := ByCode("  Sent "); !ok || s.ID != 4 {
		t.Fatalf("case/space tolerant lookup failed: %+v %v", s, ok)
	}
	if _, ok := ByCode("shipped"); ok {
		t.Fatal("unknown code resolved")
	}
}

func TestByAlias(t *testing.T) {
	cases := map[string]string{
		"production":     "production",
		"В Производстве": "production",
		"в печати":       "production",
		"залит":          "upload",
		"отправили":      "sent",
		"на доработку":   "remarks",
		"ждём":           "waiting",
	}
	for phrase, want := range cases {
		s, ok := ByAlias(phrase)
		if !ok || s.Code != want {
			t.Fatalf("ByAlias(%q) = %+v %v, want %s", phrase, s, ok, want)
		}
	}
	if _, ok := ByAlias("готово наверное"); ok {
		t.Fatal("unknown phrase resolved")
	}
}

func TestMaxAliasWords(t *testing.T) {
	if MaxAliasWords() < 2 {
		t.Fatalf("MaxAliasWords = %d, multi-word aliases exist", MaxAliasWords())
	}
}
