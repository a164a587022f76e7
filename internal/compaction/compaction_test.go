package compaction

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		expected int
	}{
		{"empty string", "", 0},
		{"short content", "Hello", 2},     // 5 chars / 4 = 1.25 -> 2
		{"exact multiple", "12345678", 2}, // 8 chars / 4 = 2
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.s); got != tt.expected {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.s, got, tt.expected)
			}
		})
	}
}

func TestResolveContextWindowTokens(t *testing.T) {
	tests := []struct {
		name                 string
		modelWindow, defWindow, want int
	}{
		{"model window wins", 8000, 4000, 8000},
		{"falls back to default", 0, 4000, 4000},
		{"falls back to package default", 0, 0, DefaultContextWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveContextWindowTokens(tt.modelWindow, tt.defWindow); got != tt.want {
				t.Errorf("ResolveContextWindowTokens(%d, %d) = %d, want %d", tt.modelWindow, tt.defWindow, got, tt.want)
			}
		})
	}
}

func TestTruncateToBudget(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		budget int
		want   string
	}{
		{"fits within budget", "Hello", 10, "Hello"},
		{"zero budget", "Hello", 0, ""},
		{"negative budget", "Hello", -1, ""},
		{"truncates with ellipsis", "this is a long string that exceeds the budget", 3, "this is a..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateToBudget(tt.s, tt.budget); got != tt.want {
				t.Errorf("TruncateToBudget(%q, %d) = %q, want %q", tt.s, tt.budget, got, tt.want)
			}
		})
	}
}
