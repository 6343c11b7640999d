package security

import "testing"

func TestFindDuplicates(t *testing.T) {
	records := []Record{
		{ID: "a", Password: "one"},
		{ID: "b", Password: "two"},
		{ID: "c", Password: "one"},
		{ID: "d", Password: "two"},
		{ID: "e", Password: "two"},
		{ID: "f", Password: "unique"},
		{ID: "g", Password: ""},
		{ID: "h", Password: ""},
	}

	groups, err := NewCalculator().FindDuplicates(records, true, 0)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Count != 3 || groups[1].Count != 2 {
		t.Errorf("expected counts [3 2], got [%d %d]", groups[0].Count, groups[1].Count)
	}
	if got := groups[0].EntryIDs; len(got) != 3 || got[0] != "b" || got[1] != "d" || got[2] != "e" {
		t.Errorf("unexpected IDs for largest group: %v", got)
	}
}

func TestFindDuplicates_LimitAndPrivacy(t *testing.T) {
	records := []Record{
		{ID: "a", Password: "x"}, {ID: "b", Password: "x"},
		{ID: "c", Password: "y"}, {ID: "d", Password: "y"},
	}

	groups, err := NewCalculator().FindDuplicates(records, false, 1)
	if err != nil {
		t.Fatalf("FindDuplicates() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group after limit, got %d", len(groups))
	}
	if groups[0].EntryIDs != nil {
		t.Error("entry IDs should be omitted")
	}
}

func TestFindDuplicates_CaseSensitive(t *testing.T) {
	records := []Record{{ID: "a", Password: "Secret"}, {ID: "b", Password: "secret"}}
	groups, _ := NewCalculator().FindDuplicates(records, false, 0)
	if len(groups) != 0 {
		t.Errorf("passwords differing in case are not duplicates, got %d groups", len(groups))
	}
}

func TestComputeValueHash_KeyDependent(t *testing.T) {
	h1 := computeValueHash("pw", []byte("key-one"))
	h2 := computeValueHash("pw", []byte("key-two"))
	if h1 == h2 {
		t.Error("hashes under different keys should differ")
	}
	if h1 != computeValueHash("pw", []byte("key-one")) {
		t.Error("hash should be deterministic for the same key")
	}
}

func TestFindWeakPasswords(t *testing.T) {
	records := []Record{
		{ID: "1", Title: "short", Password: "abc"},
		{ID: "2", Title: "strong", Password: "Tr0ub4dor&3"},
	}

	issues := NewCalculator().FindWeakPasswords(records, true, 0)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].EntryID != "1" || issues[0].Type != IssueWeakPassword {
		t.Errorf("unexpected issue: %+v", issues[0])
	}
}
