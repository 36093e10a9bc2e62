package steps

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		raw  string
		want URI
	}{
		{
			raw:  "snapshot://who/2026-08-01/gho.csv",
			want: URI{Kind: KindSnapshot, Namespace: "who", Version: "2026-08-01", Name: "gho.csv"},
		},
		{
			raw:  "data://format/who/2026-08-01/gho",
			want: URI{Kind: KindData, Channel: "format", Namespace: "who", Version: "2026-08-01", Name: "gho"},
		},
		{
			raw:  "publish://s3",
			want: URI{Kind: KindPublish, Name: "s3"},
		},
	}
	for _, test := range tests {
		got, err := ParseURI(test.raw)
		if err != nil {
			t.Fatalf("parsing %s: %v", test.raw, err)
		}
		if got != test.want {
			t.Fatalf("parsing %s: got %+v, want %+v", test.raw, got, test.want)
		}
		if got.String() != test.raw {
			t.Fatalf("round trip of %s gave %s", test.raw, got.String())
		}
	}
}

func TestParseURIErrors(t *testing.T) {
	bad := []string{
		"gho.csv",
		"snapshot://who/gho.csv",
		"snapshot://who/2026-08-01/extra/gho.csv",
		"data://who/2026-08-01/gho",
		"publish://",
		"garden://who/2026-08-01/gho",
	}
	for _, raw := range bad {
		if _, err := ParseURI(raw); err == nil {
			t.Fatalf("expected error parsing %q", raw)
		}
	}
}
