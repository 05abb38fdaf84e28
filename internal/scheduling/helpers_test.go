package scheduling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, raw string) CalendarDate {
	t.Helper()
	d, err := ParseFlexibleDate(raw)
	require.NoError(t, err)
	return d
}

func mustInterval(t *testing.T, raw string) TimeInterval {
	t.Helper()
	iv, err := ParseInterval(raw)
	require.NoError(t, err)
	return iv
}

func datePtr(d CalendarDate) *CalendarDate { return &d }

func intervalPtr(iv TimeInterval) *TimeInterval { return &iv }
