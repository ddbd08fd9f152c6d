package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVersion(t *testing.T) {
	assert.Equal(t, "1.2.3", normalizeVersion("v1.2.3"))
	assert.Equal(t, "1.2.3", normalizeVersion(" 1.2.3 "))
	assert.Equal(t, "dev", normalizeVersion("dev"))
}

func TestIsNewerVersion(t *testing.T) {
	assert.True(t, isNewerVersion("1.3.0", "1.2.9"))
	assert.True(t, isNewerVersion("v2.0.0", "1.9.9"))
	assert.False(t, isNewerVersion("1.2.3", "1.2.3"))
	assert.False(t, isNewerVersion("1.2.2", "1.2.3"))
	assert.False(t, isNewerVersion("1.10.0", "1.10.0"))
	assert.True(t, isNewerVersion("1.10.0", "1.9.0"), "numeric, not lexicographic, ordering")
}

func TestInfoSkipsUpdateCheckForDevBuilds(t *testing.T) {
	vc := &Checker{stopCh: make(chan struct{}), latest: "9.9.9"}
	info := vc.Info()
	assert.Equal(t, "9.9.9", info.Latest)
	assert.False(t, info.UpdateAvail)
}
