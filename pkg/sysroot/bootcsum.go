package sysroot

import (
	"encoding/hex"
	"io"
	"path"
	"sort"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/treemon/pkg/errors"
	"github.com/oneconcern/treemon/pkg/sysroot/status"
	"github.com/spf13/afero"
)

// Locations of the kernel and initramfs in a deployed tree, by order of preference
var (
	kernelPatterns    = []string{"boot/vmlinuz*", "usr/lib/modules/*/vmlinuz"}
	initramfsPatterns = []string{"boot/initramfs*", "usr/lib/modules/*/initramfs.img"}
)

// BootFiles are the kernel and optional initramfs of a tree, relative to its root
type BootFiles struct {
	Kernel    string
	Initramfs string
}

func findFirst(fs afero.Fs, root string, patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := afero.Glob(fs, path.Join(root, pattern))
		if err != nil {
			return "", errors.ErrInvalidArgument.Wrap(err)
		}
		sort.Strings(matches)
		for _, match := range matches {
			info, err := fs.Stat(match)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			return match, nil
		}
	}
	return "", nil
}

// findBootFiles locates the kernel and initramfs under a tree root
func findBootFiles(fs afero.Fs, root string) (BootFiles, error) {
	kernel, err := findFirst(fs, root, kernelPatterns)
	if err != nil {
		return BootFiles{}, err
	}
	if kernel == "" {
		return BootFiles{}, status.ErrNoKernel.WrapMessage("in %s", root)
	}
	initramfs, err := findFirst(fs, root, initramfsPatterns)
	if err != nil {
		return BootFiles{}, err
	}
	return BootFiles{Kernel: kernel, Initramfs: initramfs}, nil
}

// bootChecksum hashes the kernel then the initramfs of a tree.
//
// Deployments with the same boot checksum share their boot loader entry.
func bootChecksum(fs afero.Fs, root string) (string, error) {
	files, err := findBootFiles(fs, root)
	if err != nil {
		return "", err
	}
	h := blake2b.New256()
	for _, pth := range []string{files.Kernel, files.Initramfs} {
		if pth == "" {
			continue
		}
		if err = hashFile(fs, pth, h); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(fs afero.Fs, pth string, w io.Writer) error {
	f, err := fs.Open(pth)
	if err != nil {
		return errors.ErrIO.Wrap(err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err = io.Copy(w, f); err != nil {
		return errors.ErrIO.Wrap(err)
	}
	return nil
}
