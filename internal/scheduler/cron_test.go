package scheduler

import (
	"testing"
	"time"
)

func TestParseCronField(t *testing.T) {
	cases := []struct {
		name    string
		field   string
		wantErr bool
	}{
		{"wildcard", "*", false},
		{"single", "5", false},
		{"list", "1,15,30", false},
		{"invalid", "abc", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCronField(tc.field)
			if (err != nil) != tc.wantErr {
				t.Errorf("parseCronField(%q) error = %v, wantErr %v", tc.field, err, tc.wantErr)
			}
		})
	}
}

func TestNextCronTimeDailyAtThreeAM(t *testing.T) {
	after := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	want := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("nextCronTime = %v, want %v", next, want)
	}
}

func TestNextCronTimeRejectsMalformedExpression(t *testing.T) {
	_, err := nextCronTime("0 3 * *", time.Now())
	if err == nil {
		t.Fatal("expected error for a 4-field cron expression")
	}
}

func TestParsedCronMatchesTime(t *testing.T) {
	c, err := parseCron("30 14 1,15 * *")
	if err != nil {
		t.Fatalf("parseCron: %v", err)
	}

	match := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	if !c.matchesTime(match) {
		t.Errorf("expected %v to match", match)
	}

	noMatch := time.Date(2026, 3, 16, 14, 30, 0, 0, time.UTC)
	if c.matchesTime(noMatch) {
		t.Errorf("expected %v not to match", noMatch)
	}
}
