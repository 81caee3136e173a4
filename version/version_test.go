package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	info := Info{CommitHash: "abcdef0123", BuildTime: "2026-01-01", Version: "dev"}
	assert.Equal(t, "nightshift dev (commit abcdef0123, built 2026-01-01)", info.String())
	assert.Equal(t, "abcdef0", info.Short())

	info.Version = "v1.2.0"
	assert.Equal(t, "nightshift v1.2.0 (commit abcdef0123, built 2026-01-01)", info.String())
}

func TestShortKeepsShortHash(t *testing.T) {
	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}

func TestGetReportsScheduleFormats(t *testing.T) {
	info := Get()
	assert.Equal(t, "1.4", info.ScheduleWrites)
	assert.Equal(t, ">= 1.0, < 2.0", info.ScheduleReads)
	assert.Equal(t, "writes 1.4, reads >= 1.0, < 2.0", info.Formats())
	assert.NotEmpty(t, info.Platform)
}
