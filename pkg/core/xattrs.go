package core

import (
	"os"

	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/model"
	"github.com/spf13/afero"
)

// xattrsReaderFor returns a reader of extended attributes for filesystems backed by the host
func xattrsReaderFor(fs afero.Fs) func(string) ([]model.Xattr, error) {
	switch f := fs.(type) {
	case *afero.OsFs:
		return OSXattrs
	case *afero.BasePathFs:
		return func(name string) ([]model.Xattr, error) {
			hostPath, err := f.RealPath(name)
			if err != nil {
				return nil, errors.ErrInvalidArgument.Wrap(err)
			}
			// a base path over a non-host filesystem has no file here
			if _, err := os.Lstat(hostPath); err != nil {
				return nil, nil
			}
			return OSXattrs(hostPath)
		}
	default:
		return nil
	}
}
