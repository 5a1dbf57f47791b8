// Package version provides version information for go-docwire
package version

// Version is the current version of the library
const Version = "1.0.0"

// GetVersion returns the current version of the library
func GetVersion() string {
	return Version
}

// UserAgent is the default User-Agent sent on requests that do not set one.
func UserAgent() string {
	return "go-docwire/" + Version
}
