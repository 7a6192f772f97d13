package main

import "testing"

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"":                                        "",
		"postgres://lender:s3cret@db:5432/ledger": "postgres://lender:xxxxx@db:5432/ledger",
		"postgres://db:5432/ledger":               "postgres://db:5432/ledger",
		"host=db user=lender password=s3cret":     "***",
	}
	for in, want := range cases {
		if got := redactDSN(in); got != want {
			t.Fatalf("redactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
