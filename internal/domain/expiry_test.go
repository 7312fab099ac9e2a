package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 30, 0, 0, time.UTC)
}

func TestAddMonthsClampsMonthEndOverflow(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		months int
		want   time.Time
	}{
		{
			name:   "plain mid-month addition",
			start:  date(2024, time.March, 15),
			months: 1,
			want:   date(2024, time.April, 15),
		},
		{
			name:   "jan 31 clamps to end of february",
			start:  date(2023, time.January, 31),
			months: 1,
			want:   date(2023, time.February, 28),
		},
		{
			name:   "jan 31 clamps to feb 29 in a leap year",
			start:  date(2024, time.January, 31),
			months: 1,
			want:   date(2024, time.February, 29),
		},
		{
			name:   "march 31 clamps to april 30",
			start:  date(2024, time.March, 31),
			months: 1,
			want:   date(2024, time.April, 30),
		},
		{
			name:   "december wraps into the next year",
			start:  date(2024, time.December, 15),
			months: 1,
			want:   date(2025, time.January, 15),
		},
		{
			name:   "multi-month addition clamps against the target month only",
			start:  date(2024, time.January, 31),
			months: 3,
			want:   date(2024, time.April, 30),
		},
		{
			name:   "leap day clamps one year later",
			start:  date(2024, time.February, 29),
			months: 12,
			want:   date(2025, time.February, 28),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddMonths(tt.start, tt.months)
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAddMonthsPreservesClockAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	start := time.Date(2024, time.May, 31, 23, 59, 58, 7, loc)

	got := AddMonths(start, 1)

	if got.Location() != loc {
		t.Fatalf("expected location %v, got %v", loc, got.Location())
	}
	h, m, s := got.Clock()
	if h != 23 || m != 59 || s != 58 || got.Nanosecond() != 7 {
		t.Fatalf("expected clock time preserved, got %s", got)
	}
	if got.Day() != 30 || got.Month() != time.June {
		t.Fatalf("expected June 30, got %s", got)
	}
}

func TestExtendedExpiry(t *testing.T) {
	now := date(2024, time.June, 10)
	future := date(2024, time.July, 1)
	past := date(2024, time.January, 1)

	tests := []struct {
		name    string
		current *time.Time
		months  int
		want    time.Time
	}{
		{
			name:    "no prior expiry starts from now",
			current: nil,
			months:  1,
			want:    date(2024, time.July, 10),
		},
		{
			name:    "future expiry stacks remaining time",
			current: &future,
			months:  1,
			want:    date(2024, time.August, 1),
		},
		{
			name:    "lapsed expiry restarts from now",
			current: &past,
			months:  1,
			want:    date(2024, time.July, 10),
		},
		{
			name:    "multi-month extension",
			current: nil,
			months:  6,
			want:    date(2024, time.December, 10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtendedExpiry(tt.current, tt.months, now)
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSubscribedIsComputedFromActiveUntil(t *testing.T) {
	now := date(2024, time.June, 10)
	future := date(2024, time.June, 11)
	exact := now

	tests := []struct {
		name string
		rec  SubscriptionRecord
		want bool
	}{
		{name: "no expiry means not subscribed", rec: SubscriptionRecord{}, want: false},
		{name: "future expiry means subscribed", rec: SubscriptionRecord{ActiveUntil: &future}, want: true},
		{name: "expiry equal to now is not subscribed", rec: SubscriptionRecord{ActiveUntil: &exact}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Subscribed(now); got != tt.want {
				t.Fatalf("expected subscribed=%t, got %t", tt.want, got)
			}
		})
	}
}
