package ui

import "strings"

// ComposeTitle builds the operator console <title> string based on
// optional policy and host info. Empty values are omitted from the
// final string.
func ComposeTitle(policy, host string) string {
	base := "Execwall"
	if policy = strings.TrimSpace(policy); policy != "" {
		base += " | " + policy
	}
	if host = strings.TrimSpace(host); host != "" {
		base += " @ " + host
	}
	return base
}
