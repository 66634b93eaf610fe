package record

import (
	"encoding/json"
	"testing"
)

func TestCount_JSONUnknownIsNull(t *testing.T) {
	// WHAT: unknown counts serialise as null, known ones as integers.
	// WHY: callers must not confuse "0 seeders" with "seeders not shown".
	r := Result{Title: "x", Link: "magnet:?xt=urn:btih:abc", SizeBytes: Unknown, Seeders: 0, Leechers: 7, Downloads: Unknown}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["size_bytes"] != nil {
		t.Errorf("size_bytes = %v, want null", m["size_bytes"])
	}
	if m["seeders"] != float64(0) {
		t.Errorf("seeders = %v, want 0", m["seeders"])
	}
	if m["leechers"] != float64(7) {
		t.Errorf("leechers = %v, want 7", m["leechers"])
	}
}

func TestCount_UnmarshalNull(t *testing.T) {
	var c Count = 5
	if err := json.Unmarshal([]byte("null"), &c); err != nil {
		t.Fatal(err)
	}
	if c.Known() {
		t.Fatalf("null decoded to known count %d", c)
	}
}

func TestResultSet_AllFailed(t *testing.T) {
	rs := &ResultSet{Sources: []SourceStatus{
		{Site: "a", State: StateExtractionFailed},
		{Site: "b", State: StateTimedOut},
	}}
	if !rs.AllFailed() {
		t.Fatal("expected AllFailed")
	}

	rs.Sources = append(rs.Sources, SourceStatus{Site: "c", State: StateOK})
	if rs.AllFailed() {
		t.Fatal("one healthy source: AllFailed must be false")
	}

	if (&ResultSet{}).AllFailed() {
		t.Fatal("no sources is not a failure")
	}
}

func TestResultSet_Status(t *testing.T) {
	rs := &ResultSet{Sources: []SourceStatus{{Site: "nyaa.si", State: StateOK, Count: 3}}}
	st, ok := rs.Status("nyaa.si")
	if !ok || st.Count != 3 {
		t.Fatalf("Status(nyaa.si) = %+v, %v", st, ok)
	}
	if _, ok := rs.Status("missing"); ok {
		t.Fatal("unexpected status for unknown site")
	}
}
