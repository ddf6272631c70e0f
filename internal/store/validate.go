package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrHostnameInvalid is returned when a website hostname is not a DNS name.
	ErrHostnameInvalid = errors.New("hostname must be a lowercase DNS name such as example.com")

	// ErrIDInvalid is returned when a website or user id is not positive.
	ErrIDInvalid = errors.New("website and user ids must be positive")

	// Label rules from RFC 1123: alphanumerics and inner hyphens, 1-63 chars.
	hostnameLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?$`)
)

// ValidateHostname checks that hostname is a lowercase DNS name of at most 255
// characters. A single label ("localhost") is accepted.
func ValidateHostname(hostname string) error {
	if hostname == "" || len(hostname) > maxHostnameLen {
		return ErrHostnameInvalid
	}
	for _, label := range strings.Split(hostname, ".") {
		if !hostnameLabelRe.MatchString(label) {
			return fmt.Errorf("%w: %q", ErrHostnameInvalid, hostname)
		}
	}
	return nil
}

// validateNewWebsite is shared by every WebsiteProvisioner.
func validateNewWebsite(id, userID int64, hostname string) error {
	if id <= 0 || userID <= 0 {
		return ErrIDInvalid
	}
	return ValidateHostname(hostname)
}
