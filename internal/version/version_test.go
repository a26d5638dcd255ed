package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetUsesLinkerValues(t *testing.T) {
	oldV, oldC, oldT := Version, GitCommit, BuildTime
	defer func() { Version, GitCommit, BuildTime = oldV, oldC, oldT }()

	Version = "v1.4.0"
	GitCommit = "0123456789abcdef"
	BuildTime = "2026-03-01T10:00:00Z"

	info := Get()
	assert.Equal(t, "v1.4.0", info.Version)
	assert.Equal(t, "v1.4.0 (0123456)", info.Short())
	assert.True(t, info.IsRelease())
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)

	detailed := info.Detailed()
	assert.True(t, strings.HasPrefix(detailed, "Version: v1.4.0\nCommit: 0123456789abcdef"))
	assert.Contains(t, detailed, "Built: 2026-03-01T10:00:00Z")
}

func TestDevBuild(t *testing.T) {
	info := BuildInfo{Version: "dev", GitCommit: "unknown", GoVersion: "go1.25.0", Platform: "linux/amd64"}
	assert.False(t, info.IsRelease())
	assert.Equal(t, "dev", info.Short())
	assert.Equal(t, "Version: dev\nGo: go1.25.0\nPlatform: linux/amd64", info.Detailed())

	info = BuildInfo{Version: "dev-abcdef1", GitCommit: "abcdef1234"}
	assert.False(t, info.IsRelease())
	assert.Equal(t, "dev-abcdef1", info.Short())
}
