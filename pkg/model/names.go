package model

import (
	"encoding/hex"
	"regexp"
	"strings"
)

// ChecksumLength is the length of the hex representation of a checksum
const ChecksumLength = 64

var (
	refNameRe    = regexp.MustCompile(`^[\w\d][-._\w\d]*(/[\w\d][-._\w\d]*)*$`)
	remoteNameRe = regexp.MustCompile(`^[\w\d][-._\w\d]*$`)
)

// ValidateRefName checks a ref name: slash-separated components of letters, digits, '-', '.' and '_'
func ValidateRefName(name string) error {
	if !refNameRe.MatchString(name) || strings.Contains(name, "..") {
		return ErrInvalidRefName.WrapMessage("%q", name)
	}
	return nil
}

// ValidateRemoteName checks a remote name, which must not contain any slash
func ValidateRemoteName(name string) error {
	if !remoteNameRe.MatchString(name) || strings.Contains(name, "..") {
		return ErrInvalidRemoteName.WrapMessage("%q", name)
	}
	return nil
}

// ValidateChecksum checks the hex representation of a checksum
func ValidateChecksum(checksum string) error {
	if len(checksum) != ChecksumLength || strings.ToLower(checksum) != checksum {
		return ErrInvalidChecksum.WrapMessage("%q", checksum)
	}
	if _, err := hex.DecodeString(checksum); err != nil {
		return ErrInvalidChecksum.WrapMessage("%q", checksum)
	}
	return nil
}

// Refspec is a ref optionally scoped by a remote, written "remote:ref"
type Refspec struct {
	Remote string
	Ref    string
}

// ParseRefspec parses "remote:ref" or "ref"
func ParseRefspec(spec string) (Refspec, error) {
	var r Refspec
	if i := strings.IndexByte(spec, ':'); i >= 0 {
		r.Remote, r.Ref = spec[:i], spec[i+1:]
		if err := ValidateRemoteName(r.Remote); err != nil {
			return Refspec{}, err
		}
	} else {
		r.Ref = spec
	}
	if err := ValidateRefName(r.Ref); err != nil {
		return Refspec{}, err
	}
	return r, nil
}

func (r Refspec) String() string {
	if r.Remote == "" {
		return r.Ref
	}
	return r.Remote + ":" + r.Ref
}
