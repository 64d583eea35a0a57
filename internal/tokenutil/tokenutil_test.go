package tokenutil

import "testing"

func TestEstimate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "empty", content: "", want: 0},
		{name: "single word", content: "hello", want: 1},
		{
			name:    "sentence",
			content: "the scheduler drained all four pools before releasing resources today",
			// 10 words * 1.33 = 13; len=69, 69/4=17 => 17
			want: 17,
		},
		{
			name:    "code",
			content: `func main() { fmt.Println("hi") }`,
			// len=33, 33/4=8; 4 words*1.33=5 => 8
			want: 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.content); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.content, got, tt.want)
			}
		})
	}
}

func TestEstimateAll(t *testing.T) {
	if got := EstimateAll("hello", "world"); got != 2 {
		t.Errorf("EstimateAll = %d, want 2", got)
	}
	if got := EstimateAll(); got != 0 {
		t.Errorf("EstimateAll() = %d, want 0", got)
	}
}
