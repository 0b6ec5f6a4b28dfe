package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull(t *testing.T) {
	old := Version
	Version = "v1.0.0"
	defer func() { Version = old }()

	assert.Equal(t, "v1.0.0 (unknown)", String())
	full := Full()
	assert.Contains(t, full, runtime.Version())
	assert.Contains(t, full, "playwright")
	assert.Contains(t, GetInfo().Drivers, "static")
}
