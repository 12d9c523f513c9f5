package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMajorityVote(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   string
	}{
		{"clear majority", []string{"Hope Pantry", "Hope Pantry", "HOPE PANTRY INC"}, "Hope Pantry"},
		{"tie goes to first seen", []string{"Alpha", "Beta", "Alpha", "Beta"}, "Alpha"},
		{"tie goes to first seen even when later value fills its count first", []string{"Beta", "Alpha", "Alpha", "Beta"}, "Beta"},
		{"later value overtakes", []string{"Alpha", "Beta", "Beta"}, "Beta"},
		{"empty strings ignored", []string{"", "", "Only"}, "Only"},
		{"all empty", []string{"", ""}, ""},
		{"no values", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, majorityVote(tc.values))
		})
	}
}

func TestLongestNonEmpty(t *testing.T) {
	assert.Equal(t,
		"a considerably longer description of services",
		longestNonEmpty([]string{"short", "a considerably longer description of services"}),
	)
	assert.Equal(t, "", longestNonEmpty(nil))
	assert.Equal(t, "x", longestNonEmpty([]string{"", "x"}))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "kept", firstNonEmpty("kept", "candidate"))
	assert.Equal(t, "candidate", firstNonEmpty("", "candidate"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
