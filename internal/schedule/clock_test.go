package schedule

import "testing"

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "9:05", want: 545},
		{in: "00:00", want: 0},
		{in: "23:59", want: 1439},
		{in: "13:45:30", want: 825},
		{in: "", wantErr: true},
		{in: "0900", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:00:61", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "12:3x", wantErr: true},
		{in: "12:00:00:00", wantErr: true},
		{in: "123:00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				if _, ok := err.(*ParseError); !ok {
					t.Fatalf("ParseClock(%q) error type = %T, want *ParseError", tt.in, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestWeekday(t *testing.T) {
	// 2025-08-18 is a Monday, 2025-08-24 a Sunday.
	for i, want := range []int{1, 2, 3, 4, 5, 6, 7} {
		d := date(2025, 8, 18+i)
		if got := Weekday(d); got != want {
			t.Errorf("Weekday(%s) = %d, want %d", d.Format(DateFormat), got, want)
		}
	}
}
