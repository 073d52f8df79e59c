package ipfs

import "regexp"

// CurrentCommit is the current git commit, this is set as a ldflag in the Makefile
var CurrentCommit string

// CurrentVersionNumber is the current application's version literal
const CurrentVersionNumber = "0.1.0-dev"

// ApiVersion is the RPC API path prefix the backend targets.
const ApiVersion = "/api/v0" //nolint

const maxVersionLen = 64

// GetUserAgentVersion is the HTTP user agent sent with every RPC request.
//
// Note: This will end in `/` when no commit is available. This is expected.
func GetUserAgentVersion() string {
	userAgent := "kubo-rpc-backend/" + CurrentVersionNumber + "/" + CurrentCommit
	if userAgentSuffix != "" {
		if CurrentCommit != "" {
			userAgent += "/"
		}
		userAgent += userAgentSuffix
	}
	return TrimVersion(userAgent)
}

var userAgentSuffix string
var onlyASCII = regexp.MustCompile("[[:^ascii:]]")

func SetUserAgentSuffix(suffix string) {
	userAgentSuffix = TrimVersion(suffix)
}

func TrimVersion(version string) string {
	ascii := onlyASCII.ReplaceAllLiteralString(version, "")
	chars := 0
	for i := range ascii {
		if chars >= maxVersionLen {
			ascii = ascii[:i]
			break
		}
		chars++
	}
	return ascii
}

// VersionInfo is the payload of the daemon's `version` command.
type VersionInfo struct {
	Version string
	Commit  string
	Repo    string
	System  string
	Golang  string
}

