package buildinfo

import "testing"

func TestInfo_String(t *testing.T) {
	i := Info{Version: "v1.2.0", Commit: "0123456789abcdef", Date: "2026-10-01"}
	if got := i.String(); got != "v1.2.0 (0123456789ab) 2026-10-01" {
		t.Fatalf("unexpected %q", got)
	}
	if got := (Info{Version: "dev"}).String(); got != "dev" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestCurrent_KeepsLdflagsCommit(t *testing.T) {
	old := Commit
	Commit = "abc"
	t.Cleanup(func() { Commit = old })

	if c := Current(); c.Commit != "abc" || c.GoVersion == "" {
		t.Fatalf("unexpected info %+v", c)
	}
}
