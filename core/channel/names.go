package channel

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLength bounds channel names. Group names over this limit are a
// configuration smell and get a warning, but are not rejected.
const MaxNameLength = 100

// DefaultNameSeparator splits the prefix from the random suffix in
// process-specific channel names.
const DefaultNameSeparator = "!"

// defaultChannelPrefix is used by NewChannel when no prefix is given.
const defaultChannelPrefix = "specific"

// suffixHexLen is the length of the random hex suffix in generated
// process-specific channel names.
const suffixHexLen = 32

var groupNameRegex = regexp.MustCompile(`^[a-zA-Z\d\-_.]+$`)

// channelNamePattern compiles the channel name pattern for a separator: a
// base of ASCII alphanumerics, hyphens, underscores, or periods, optionally
// followed by a single separator and a process-specific suffix. The layer
// builds this once at construction so validation always agrees with the
// names NewChannel mints.
func channelNamePattern(separator string) *regexp.Regexp {
	return regexp.MustCompile(`^[a-zA-Z\d\-_.]+(` + regexp.QuoteMeta(separator) + `[\d\w\-_.]*)?$`)
}

// validateChannelName checks a channel name against the pattern and the
// length limit.
func validateChannelName(name string, pattern *regexp.Regexp) error {
	if name == "" || len(name) >= MaxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidChannelName, name)
	}
	if !pattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidChannelName, name)
	}
	return nil
}

// validateGroupName checks the group name charset. Length is not enforced
// here; the layer warns on over-long names instead of failing.
func validateGroupName(name string) error {
	if name == "" || !groupNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidGroupName, name)
	}
	return nil
}

// randomSuffix returns a 128-bit hex token for process-specific channel names.
// The entropy makes both collisions and guessing infeasible, which is what
// lets process-specific channels serve as reply-to addresses.
func randomSuffix() (string, error) {
	var buf [suffixHexLen / 2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate channel suffix: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// nonLocalName returns the part of a channel name shared across processes:
// everything up to and including the separator for process-specific names,
// the full name otherwise.
func nonLocalName(name, separator string) string {
	if idx := strings.Index(name, separator); idx >= 0 {
		return name[:idx+len(separator)]
	}
	return name
}
