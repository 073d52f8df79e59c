package config

import (
	"encoding/base64"
	"strings"
)

// ConvertAuthSecret converts the given secret in the format "type:value" into an
// HTTP Authorization header value. It can handle 'bearer' and 'basic' as type.
// If type exists and is not known, an empty string is returned. If type does not
// exist, 'bearer' type is assumed.
func ConvertAuthSecret(secret string) string {
	if secret == "" {
		return secret
	}

	split := strings.SplitN(secret, ":", 2)
	if len(split) < 2 {
		// No prefix: assume bearer token.
		return "Bearer " + secret
	}

	if strings.HasPrefix(secret, "basic:") {
		if strings.Contains(split[1], ":") {
			// Assume basic:user:password
			return "Basic " + base64.StdEncoding.EncodeToString([]byte(split[1]))
		} else {
			// Assume already base64 encoded.
			return "Basic " + split[1]
		}
	} else if strings.HasPrefix(secret, "bearer:") {
		return "Bearer " + split[1]
	}

	// Unknown. Type is present, but we can't handle it.
	return ""
}
