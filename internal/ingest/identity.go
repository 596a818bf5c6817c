package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IDLayout is the timestamp prefix of a recording id: yymmddHHMMSS.
const IDLayout = "060102150405"

const maxOwnerLen = 128

// ErrInvalidOwner is returned for owner ids that cannot be embedded in a
// recording id or a file name.
var ErrInvalidOwner = errors.New("invalid owner id")

// GenerateID returns "<yymmddHHMMSS>_<owner>" for an upload received at now.
// Two uploads by the same owner within one second produce the same id.
func GenerateID(owner string, now time.Time) (string, error) {
	if err := ValidateOwner(owner); err != nil {
		return "", err
	}
	return now.Format(IDLayout) + "_" + owner, nil
}

// ValidateOwner rejects owner ids that are empty, too long, or could escape
// the working directory.
func ValidateOwner(owner string) error {
	switch {
	case owner == "":
		return fmt.Errorf("%w: empty", ErrInvalidOwner)
	case len(owner) > maxOwnerLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidOwner, maxOwnerLen)
	case strings.Trim(owner, ".") == "":
		return fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	case strings.ContainsAny(owner, "/\\\x00 \t\r\n"):
		return fmt.Errorf("%w: %q contains a separator or whitespace", ErrInvalidOwner, owner)
	}
	return nil
}

// OwnerFromID returns the owner part of a recording id.
func OwnerFromID(id string) (string, bool) {
	if len(id) < len(IDLayout)+2 || id[len(IDLayout)] != '_' {
		return "", false
	}
	if _, err := time.Parse(IDLayout, id[:len(IDLayout)]); err != nil {
		return "", false
	}
	return id[len(IDLayout)+1:], true
}
