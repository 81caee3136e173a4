// Package version reports how the nightshift binary was built and which
// schedule list formats it reads and writes.
package version

import (
	"fmt"
	"runtime"

	"github.com/teranos/nightshift/scheduler/schedfile"
)

// Set at build time via ldflags.
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info describes the running binary.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`

	// ScheduleWrites is the schedule list version Save produces and
	// ScheduleReads the range of versions Load accepts.
	ScheduleWrites string `json:"schedule_writes"`
	ScheduleReads  string `json:"schedule_reads"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		CommitHash:     CommitHash,
		BuildTime:      BuildTime,
		Version:        Version,
		GoVersion:      runtime.Version(),
		Platform:       fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		ScheduleWrites: schedfile.Version,
		ScheduleReads:  schedfile.Supported,
	}
}

func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("nightshift %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("nightshift dev (commit %s, built %s)", i.CommitHash, i.BuildTime)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// Formats describes the schedule list versions for the version command.
func (i Info) Formats() string {
	return fmt.Sprintf("writes %s, reads %s", i.ScheduleWrites, i.ScheduleReads)
}
