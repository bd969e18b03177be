package storage

import "testing"

func TestListRange(t *testing.T) {
	tests := []struct {
		name        string
		n           int
		start, stop int64
		lo, hi      int
	}{
		{"all", 5, 0, -1, 0, 5},
		{"head", 5, 0, 1, 0, 2},
		{"tail", 5, -2, -1, 3, 5},
		{"stop past end", 5, 2, 99, 2, 5},
		{"start past end", 5, 7, 9, 0, 0},
		{"inverted", 5, 3, 1, 0, 0},
		{"empty list", 0, 0, -1, 0, 0},
		{"negative start clamps", 3, -10, 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := ListRange(tt.n, tt.start, tt.stop)
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("ListRange(%d, %d, %d) = (%d, %d), want (%d, %d)",
					tt.n, tt.start, tt.stop, lo, hi, tt.lo, tt.hi)
			}
		})
	}
}
