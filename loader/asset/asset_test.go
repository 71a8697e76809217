package asset

import (
	"bytes"
	"testing"
	"testing/fstest"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/firmware/hostfw"
	"github.com/FacelessSociety/FacelessLoader2/loader"
)

func setup(t *testing.T, files fstest.MapFS) firmware.Volume {
	t.Helper()

	m := hostfw.New(hostfw.Config{Files: files})
	vol, err := OpenVolume(m.SystemTable().Boot)
	if err != nil {
		t.Fatal(err)
	}

	return vol
}

func TestOpen(t *testing.T) {
	payload := bytes.Repeat([]byte("faceless"), 1000)
	vol := setup(t, fstest.MapFS{
		"kernel.elf": &fstest.MapFile{Data: payload},
		"empty":      &fstest.MapFile{},
	})

	f, size, err := Open(vol, `\kernel.elf`)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if size != uint64(len(payload)) {
		t.Fatalf("expected size %d; got %d", len(payload), size)
	}

	buf := make([]byte, size)
	if err = ReadExact(f, buf); err != nil || !bytes.Equal(buf, payload) {
		t.Fatalf("expected file contents to be read back; got %v", err)
	}

	specs := []struct {
		path    string
		expKind loader.Kind
	}{
		{"missing.elf", loader.NotFound},
		{"empty", loader.FormatInvalid},
	}

	for specIndex, spec := range specs {
		if _, _, err := Open(vol, spec.path); loader.KindOf(err) != spec.expKind {
			t.Errorf("[spec %d] expected error kind %s; got %v", specIndex, spec.expKind, err)
		}
	}
}

func TestOpenVolumeFailure(t *testing.T) {
	m := hostfw.New(hostfw.Config{})
	if _, err := OpenVolume(m.SystemTable().Boot); loader.KindOf(err) != loader.FirmwareCallFailure {
		t.Fatalf("expected firmware call failure; got %v", err)
	}
}

// chunkedFile returns at most chunk bytes per Read call and reports a
// device error once failAt bytes have been consumed.
type chunkedFile struct {
	firmware.File

	data   []byte
	pos    int
	chunk  int
	failAt int
}

func (f *chunkedFile) Read(p []byte) (int, error) {
	if f.failAt > 0 && f.pos >= f.failAt {
		return 0, firmware.DeviceError
	}

	n := copy(p, f.data[f.pos:])
	if n > f.chunk {
		n = f.chunk
	}
	f.pos += n
	return n, nil
}

func (f *chunkedFile) SetPosition(pos uint64) error {
	if pos > uint64(len(f.data)) {
		return firmware.InvalidParameter
	}
	f.pos = int(pos)
	return nil
}

func TestReadExact(t *testing.T) {
	data := []byte("0123456789abcdef")

	specs := []struct {
		f       *chunkedFile
		size    int
		expKind loader.Kind
	}{
		{&chunkedFile{data: data, chunk: 3}, 16, loader.KindUnknown},
		{&chunkedFile{data: data, chunk: 3}, 17, loader.FormatInvalid},
		{&chunkedFile{data: data, chunk: 4, failAt: 8}, 16, loader.FirmwareCallFailure},
	}

	for specIndex, spec := range specs {
		buf := make([]byte, spec.size)
		err := ReadExact(spec.f, buf)

		switch {
		case spec.expKind == loader.KindUnknown && err != nil:
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		case spec.expKind == loader.KindUnknown && !bytes.Equal(buf, data):
			t.Errorf("[spec %d] expected %q; got %q", specIndex, data, buf)
		case spec.expKind != loader.KindUnknown && loader.KindOf(err) != spec.expKind:
			t.Errorf("[spec %d] expected error kind %s; got %v", specIndex, spec.expKind, err)
		}
	}
}

func TestReadAt(t *testing.T) {
	f := &chunkedFile{data: []byte("0123456789"), chunk: 64}

	buf := make([]byte, 4)
	if err := ReadAt(f, 6, buf); err != nil || string(buf) != "6789" {
		t.Fatalf("expected 6789; got %q, %v", buf, err)
	}

	if err := ReadAt(f, 100, buf); loader.KindOf(err) != loader.FirmwareCallFailure {
		t.Fatalf("expected seek failure to be a firmware call failure; got %v", err)
	}
}
