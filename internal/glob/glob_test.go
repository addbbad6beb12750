package glob_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/glob"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"", "anything.txt", true},
		{"*.txt", "report.txt", true},
		{"*.txt", "report.csv", false},
		{"data_???.csv", "data_001.csv", true},
		{"data_???.csv", "data_0001.csv", false},
		{"[abc]*.dat", "b_file.dat", true},
		{"[abc]*.dat", "d_file.dat", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, glob.Match(c.pattern, c.name), "pattern=%q name=%q", c.pattern, c.name)
	}
}

func TestValid(t *testing.T) {
	require.True(t, glob.Valid(""))
	require.True(t, glob.Valid("*.txt"))
	require.False(t, glob.Valid("[unterminated"))
}
