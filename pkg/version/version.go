package version

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"

// UserAgent is sent by the dashboard on every poll.
func UserAgent() string {
	return "courier-pulse/" + Build
}
