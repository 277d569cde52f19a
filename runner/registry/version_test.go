package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareDotted(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2", "1.9.9", 1},
		{"1.0", "1.0.0", 0},    // missing segments count as 0
		{"1.0.0.1", "1.0.0", 1}, // four-segment builds order correctly
		{"v1.2.0", "1.2.0", 0},
		{"1.10.0", "1.9.0", 1}, // numeric, not lexicographic
		{"", "0.0.0", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareDotted(tt.a, tt.b), "CompareDotted(%q, %q)", tt.a, tt.b)
	}
}

func TestMeetsMinimum(t *testing.T) {
	assert.True(t, MeetsMinimum("1.4.0", ""))
	assert.True(t, MeetsMinimum("", ""))
	assert.True(t, MeetsMinimum("1.4.0", "1.4"))
	assert.True(t, MeetsMinimum("1.5", "1.4.9"))
	assert.False(t, MeetsMinimum("1.3.9", "1.4"))
	assert.False(t, MeetsMinimum("", "0.1"))
}

func TestRuntimeAdvisory(t *testing.T) {
	assert.Empty(t, runtimeAdvisory(nil, ">= 18"))
	assert.Empty(t, runtimeAdvisory(map[string]string{"node": "20.1.0"}, ""))
	assert.Empty(t, runtimeAdvisory(map[string]string{"node": "20.1.0"}, ">= 18"))
	assert.Empty(t, runtimeAdvisory(map[string]string{"deno": "1.40"}, ">= 18"))

	advisory := runtimeAdvisory(map[string]string{"node": "16.20.0"}, ">= 18")
	assert.Contains(t, advisory, "16.20.0")

	advisory = runtimeAdvisory(map[string]string{"node": "not-a-version"}, ">= 18")
	assert.Contains(t, advisory, "unparseable")
}
