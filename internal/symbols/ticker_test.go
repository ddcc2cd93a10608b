package symbols

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" aapl ", "AAPL"},
		{"NVDA", "NVDA"},
		{"nasdaq:nvda", "NVDA"},
		{"NYSE: ko", "KO"},
		{"tsla.us", "TSLA"},
		{"brk/b", "BRK.B"},
		{"BRK.B", "BRK.B"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}
