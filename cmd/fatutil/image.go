package main

import (
	"os"
	"strings"

	"github.com/gofatfs/fatfs/blockdev"
	"github.com/gofatfs/fatfs/fatfs"
	"github.com/gofatfs/fatfs/lfndir"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

const defaultSectorSize = 512

// openVolume mounts the image at path, read-only unless writable is set.
func openVolume(path string, writable bool) (*fatfs.FileSystem, func() error, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, nil, err
	}

	dev := blockdev.NewFileDevice(f, defaultSectorSize, !writable)
	var opts []fatfs.Option
	if !writable {
		opts = append(opts, fatfs.ReadOnly())
	}

	fs, err := fatfs.Open(dev, opts...)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return fs, fs.Close, nil
}

// resolveDir walks path (slash-separated, relative to the volume root)
// down through nested subdirectories and returns the directory it names.
// An empty path (or "/") returns root itself.
func resolveDir(root *lfndir.FatLfnDirectory, path string) (*lfndir.FatLfnDirectory, error) {
	dir := root
	for _, part := range splitPath(path) {
		next, err := dir.OpenDirectory(part)
		if err != nil {
			return nil, err
		}
		dir = next
	}
	return dir, nil
}

// resolveFile walks path's directory components the same way resolveDir
// does, then opens the final component as a file within that directory.
func resolveFile(root *lfndir.FatLfnDirectory, path string) (*lfndir.FatLfnDirectory, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", fatErrors.ErrInvalidArgument.WithMessage("empty path")
	}
	dir, err := resolveDir(root, strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", err
	}
	return dir, parts[len(parts)-1], nil
}

func splitPath(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
