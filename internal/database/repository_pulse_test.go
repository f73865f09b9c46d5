package database

import "testing"

func TestStaleCutoffExprPerCategory(t *testing.T) {
	cases := []struct {
		category string
		want     string
	}{
		// NEW rows get updated_at refreshed on every feed cycle; aging
		// against it would keep listed tokens alive forever
		{CategoryNew, "COALESCE(token_created_at, created_at)"},
		{CategoryGraduated, "COALESCE(graduated_at, updated_at)"},
		{CategoryGraduating, "updated_at"},
	}
	for _, tc := range cases {
		if got := staleCutoffExpr(tc.category); got != tc.want {
			t.Errorf("%s: cutoff %q, want %q", tc.category, got, tc.want)
		}
	}
}
