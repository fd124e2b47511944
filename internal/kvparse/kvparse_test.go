package kvparse

import "testing"

func TestParseBareValues(t *testing.T) {
	pairs, err := Parse("id=1,name=alice,active=true")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Pair{{Field: "id", Value: "1"}, {Field: "name", Value: "alice"}, {Field: "active", Value: "true"}}
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d", len(pairs), len(want))
	}
	for i, p := range pairs {
		if p != want[i] {
			t.Errorf("pair[%d] = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestParseQuotedValues(t *testing.T) {
	pairs, err := Parse(`name='Bob Smith',note="has, comma"`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}
	if pairs[0].Value != "Bob Smith" {
		t.Errorf("pairs[0].Value = %q, want %q", pairs[0].Value, "Bob Smith")
	}
	if pairs[1].Value != "has, comma" {
		t.Errorf("pairs[1].Value = %q, want %q", pairs[1].Value, "has, comma")
	}
}

func TestParseEmpty(t *testing.T) {
	pairs, err := Parse("")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if pairs != nil {
		t.Errorf("Parse(\"\") = %+v, want nil", pairs)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{"=novalue", "noequals", "field=,other=1"}
	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should have failed", s)
		}
	}
}

func TestParseSingleField(t *testing.T) {
	pairs, err := Parse("status=active")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Field != "status" || pairs[0].Value != "active" {
		t.Errorf("unexpected result: %+v", pairs)
	}
}
