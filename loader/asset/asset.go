// Package asset loads files from the boot volume into firmware-allocated
// memory. An asset either loads completely or the boot process is aborted;
// there is no partial success.
package asset

import (
	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/pkg/errors"
)

var (
	errVolumeOpen = &loader.Error{Module: "asset", Message: "could not open boot volume", Kind: loader.FirmwareCallFailure}
	errNotFound   = &loader.Error{Module: "asset", Message: "file not found", Kind: loader.NotFound}
	errOpen       = &loader.Error{Module: "asset", Message: "could not open file", Kind: loader.FirmwareCallFailure}
	errFileInfo   = &loader.Error{Module: "asset", Message: "could not query file size", Kind: loader.FirmwareCallFailure}
	errEmptyFile  = &loader.Error{Module: "asset", Message: "file is empty", Kind: loader.FormatInvalid}
	errRead       = &loader.Error{Module: "asset", Message: "file read failed", Kind: loader.FirmwareCallFailure}
	errShortRead  = &loader.Error{Module: "asset", Message: "unexpected end of file", Kind: loader.FormatInvalid}
	errSeek       = &loader.Error{Module: "asset", Message: "could not set file position", Kind: loader.FirmwareCallFailure}
)

// OpenVolume opens the root directory of the boot volume.
func OpenVolume(bs firmware.BootServices) (firmware.Volume, error) {
	vol, err := bs.OpenVolume()
	if err != nil {
		return nil, errors.Wrap(errVolumeOpen, err.Error())
	}

	return vol, nil
}

// Open opens path relative to the root of vol and queries its size. Empty
// files are rejected so that every asset the loader reads carries data.
func Open(vol firmware.Volume, path string) (firmware.File, uint64, error) {
	f, err := vol.Open(path)
	switch firmware.StatusOf(err) {
	case firmware.Success:
	case firmware.NotFound:
		return nil, 0, errors.Wrapf(errNotFound, "%s", path)
	default:
		return nil, 0, errors.Wrapf(errOpen, "%s: %v", path, err)
	}

	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, 0, errors.Wrapf(errFileInfo, "%s: %v", path, err)
	}

	if size == 0 {
		f.Close()
		return nil, 0, errors.Wrapf(errEmptyFile, "%s", path)
	}

	return f, size, nil
}

// ReadExact fills buf from the current position of f. Reaching the end of
// the file before buf is full is treated as a format error.
func ReadExact(f firmware.File, buf []byte) error {
	for read := 0; read < len(buf); {
		n, err := f.Read(buf[read:])
		if err != nil {
			return errors.Wrapf(errRead, "after %d of %d bytes: %v", read, len(buf), err)
		}

		if n == 0 {
			return errors.Wrapf(errShortRead, "got %d of %d bytes", read, len(buf))
		}

		read += n
	}

	return nil
}

// ReadAt moves the position of f to offset and fills buf.
func ReadAt(f firmware.File, offset uint64, buf []byte) error {
	if err := f.SetPosition(offset); err != nil {
		return errors.Wrapf(errSeek, "offset %d: %v", offset, err)
	}

	return ReadExact(f, buf)
}
