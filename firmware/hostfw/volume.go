package hostfw

import (
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
)

// LocateGraphicsOutput implements firmware.BootServices.
func (m *Machine) LocateGraphicsOutput() (firmware.GraphicsOutput, error) {
	m.record("LocateGraphicsOutput")
	if err := m.checkBootServices(); err != nil {
		return nil, err
	}

	if m.gop == nil {
		return nil, firmware.NotFound
	}

	return graphicsOutput{mode: *m.gop}, nil
}

type graphicsOutput struct {
	mode firmware.GraphicsMode
}

func (g graphicsOutput) Mode() (*firmware.GraphicsMode, error) {
	mode := g.mode
	return &mode, nil
}

// OpenVolume implements firmware.BootServices.
func (m *Machine) OpenVolume() (firmware.Volume, error) {
	m.record("OpenVolume")
	if err := m.checkBootServices(); err != nil {
		return nil, err
	}

	if m.cfg.Files == nil {
		return nil, firmware.NoMedia
	}

	return &volume{m: m, fsys: m.cfg.Files}, nil
}

type volume struct {
	m    *Machine
	fsys fs.FS
}

// Open accepts both firmware style (`\EFI\kernel.elf`) and slash separated
// paths relative to the volume root.
func (v *volume) Open(path string) (firmware.File, error) {
	v.m.record("Open %s", path)

	name := strings.TrimPrefix(strings.ReplaceAll(path, `\`, "/"), "/")
	f, err := v.fsys.Open(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, firmware.NotFound
	case err != nil:
		return nil, firmware.DeviceError
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		f.Close()
		return nil, firmware.Unsupported
	}

	return &file{v: v, path: path, f: f, rs: rs}, nil
}

type file struct {
	v    *volume
	path string
	f    fs.File
	rs   io.ReadSeeker
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.rs.Read(p)
	switch {
	case err == io.EOF:
		return n, nil
	case err != nil:
		return n, firmware.DeviceError
	}

	return n, nil
}

func (f *file) SetPosition(pos uint64) error {
	f.v.m.record("SetPosition %s %d", f.path, pos)
	if _, err := f.rs.Seek(int64(pos), io.SeekStart); err != nil {
		return firmware.DeviceError
	}
	return nil
}

func (f *file) Size() (uint64, error) {
	info, err := f.f.Stat()
	if err != nil {
		return 0, firmware.DeviceError
	}
	return uint64(info.Size()), nil
}

func (f *file) Close() error {
	return f.f.Close()
}
