package cookieutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatHeader(t *testing.T) {
	header := FormatHeader([]Cookie{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
	})
	require.Equal(t, "a=1; b=2", header)
}

func TestFormatHeaderEmpty(t *testing.T) {
	require.Equal(t, "", FormatHeader(nil))
}
