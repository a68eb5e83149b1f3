package tardiness

import (
	"testing"
	"time"
)

// SetNow freezes the clock of the package for the duration of t.
func SetNow(t *testing.T, now time.Time) {
	orig := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = orig })
}
