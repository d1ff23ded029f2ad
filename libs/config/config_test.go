package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Setenv("RC_TEST_STRING", "")
	assert.Equal(t, "fallback", String("RC_TEST_STRING", "fallback"))

	t.Setenv("RC_TEST_STRING", "set")
	assert.Equal(t, "set", String("RC_TEST_STRING", "fallback"))
}

func TestRequiredString(t *testing.T) {
	t.Setenv("RC_TEST_REQUIRED", "")
	_, err := RequiredString("RC_TEST_REQUIRED")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RC_TEST_REQUIRED is required")
}

func TestInt(t *testing.T) {
	t.Setenv("RC_TEST_INT", "")
	n, err := Int("RC_TEST_INT", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	t.Setenv("RC_TEST_INT", "12")
	n, err = Int("RC_TEST_INT", 50)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	t.Setenv("RC_TEST_INT", "twelve")
	_, err = Int("RC_TEST_INT", 50)
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	tests := map[string]struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		"unset":       {raw: "", want: 3 * time.Second},
		"seconds":     {raw: "30", want: 30 * time.Second},
		"go duration": {raw: "1500ms", want: 1500 * time.Millisecond},
		"malformed":   {raw: "soon", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("RC_TEST_DURATION", tc.raw)
			got, err := Duration("RC_TEST_DURATION", 3*time.Second)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBool(t *testing.T) {
	t.Setenv("RC_TEST_BOOL", "")
	assert.True(t, Bool("RC_TEST_BOOL", true))

	t.Setenv("RC_TEST_BOOL", "false")
	assert.False(t, Bool("RC_TEST_BOOL", true))

	t.Setenv("RC_TEST_BOOL", "1")
	assert.True(t, Bool("RC_TEST_BOOL", false))

	t.Setenv("RC_TEST_BOOL", "maybe")
	assert.False(t, Bool("RC_TEST_BOOL", false))
}
