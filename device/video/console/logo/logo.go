// Package logo loads the BMP images that are handed over to the kernel.
package logo

import (
	"bytes"
	"encoding/binary"
	"image"

	"github.com/FacelessSociety/FacelessLoader2/firmware"
	"github.com/FacelessSociety/FacelessLoader2/loader"
	"github.com/FacelessSociety/FacelessLoader2/loader/asset"
	"github.com/FacelessSociety/FacelessLoader2/loader/mem"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
)

const (
	// MaxImages is the number of image slots in the handoff record.
	MaxImages = 1

	// FileHeaderSize is the size of the BMP file header.
	FileHeaderSize = 14

	// InfoHeaderSize is the size of the BITMAPINFOHEADER that follows the
	// file header.
	InfoHeaderSize = 40
)

// Signature is the BMP file signature ("BM").
var Signature = [2]byte{'B', 'M'}

var (
	errBadSignature  = &loader.Error{Module: "logo", Message: "image has an invalid signature", Kind: loader.FormatInvalid}
	errTruncated     = &loader.Error{Module: "logo", Message: "image declares a size smaller than its headers", Kind: loader.FormatInvalid}
	errTooManyImages = &loader.Error{Module: "logo", Message: "too many images configured", Kind: loader.FormatInvalid}
	errDecode        = &loader.Error{Module: "logo", Message: "could not decode image", Kind: loader.FormatInvalid}
)

// FileHeader is the BMP file header.
type FileHeader struct {
	Signature [2]byte

	// The size of the whole file as declared by the header.
	FileSize uint32

	Reserved1, Reserved2 uint16

	// The offset of the pixel data from the start of the file.
	DataOffset uint32
}

func decodeFileHeader(buf []byte) FileHeader {
	_ = buf[FileHeaderSize-1]
	return FileHeader{
		Signature:  [2]byte{buf[0], buf[1]},
		FileSize:   binary.LittleEndian.Uint32(buf[2:]),
		Reserved1:  binary.LittleEndian.Uint16(buf[6:]),
		Reserved2:  binary.LittleEndian.Uint16(buf[8:]),
		DataOffset: binary.LittleEndian.Uint32(buf[10:]),
	}
}

// InfoHeader is the BITMAPINFOHEADER describing the image.
type InfoHeader struct {
	HeaderSize uint32

	// The image dimensions. A positive height indicates a bottom-up
	// bitmap.
	Width  int32
	Height int32

	Planes       uint16
	BitsPerPixel uint16
	Compression  uint32
	ImageSize    uint32

	XPixelsPerMeter int32
	YPixelsPerMeter int32

	ColorsUsed      uint32
	ColorsImportant uint32
}

func decodeInfoHeader(buf []byte) InfoHeader {
	_ = buf[InfoHeaderSize-1]
	le := binary.LittleEndian
	return InfoHeader{
		HeaderSize:      le.Uint32(buf[0:]),
		Width:           int32(le.Uint32(buf[4:])),
		Height:          int32(le.Uint32(buf[8:])),
		Planes:          le.Uint16(buf[12:]),
		BitsPerPixel:    le.Uint16(buf[14:]),
		Compression:     le.Uint32(buf[16:]),
		ImageSize:       le.Uint32(buf[20:]),
		XPixelsPerMeter: int32(le.Uint32(buf[24:])),
		YPixelsPerMeter: int32(le.Uint32(buf[28:])),
		ColorsUsed:      le.Uint32(buf[32:]),
		ColorsImportant: le.Uint32(buf[36:]),
	}
}

// Resource is an image that has been loaded into pool memory.
type Resource struct {
	Header FileHeader
	Info   InfoHeader

	// The physical address of the image buffer.
	Addr uint64

	// Data aliases the image buffer. Its length always equals the file
	// size declared by Header.
	Data []byte
}

// Pixels returns the pixel array of the image or nil if the data offset
// lies outside the buffer.
func (r *Resource) Pixels() []byte {
	if uint64(r.Header.DataOffset) >= uint64(len(r.Data)) {
		return nil
	}

	return r.Data[r.Header.DataOffset:]
}

// Image decodes the loaded bitmap.
func (r *Resource) Image() (image.Image, error) {
	img, err := bmp.Decode(bytes.NewReader(r.Data))
	if err != nil {
		return nil, errors.Wrap(errDecode, err.Error())
	}

	return img, nil
}

// Build loads the BMP image at path. The whole file, as sized by the
// header, is placed in a single pool allocation.
func Build(vol firmware.Volume, pool *mem.Pool, path string) (*Resource, error) {
	f, _, err := asset.Open(vol, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hdrBuf [FileHeaderSize]byte
	if err = asset.ReadExact(f, hdrBuf[:]); err != nil {
		return nil, errors.Wrapf(err, "%s header", path)
	}

	res := Resource{Header: decodeFileHeader(hdrBuf[:])}
	if res.Header.Signature != Signature {
		return nil, errors.Wrapf(errBadSignature, "%s: got 0x%02x 0x%02x", path, hdrBuf[0], hdrBuf[1])
	}

	if res.Header.FileSize < FileHeaderSize+InfoHeaderSize {
		return nil, errors.Wrapf(errTruncated, "%s: declared size %d", path, res.Header.FileSize)
	}

	if res.Addr, res.Data, err = pool.Alloc(uint64(res.Header.FileSize)); err != nil {
		return nil, err
	}

	if err = asset.ReadAt(f, 0, res.Data); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	res.Info = decodeInfoHeader(res.Data[FileHeaderSize:])
	return &res, nil
}

// BuildAll loads the images listed in paths into the image slots. Unused
// slots are left nil.
func BuildAll(vol firmware.Volume, pool *mem.Pool, paths []string) ([MaxImages]*Resource, error) {
	var slots [MaxImages]*Resource

	if len(paths) > MaxImages {
		return slots, errors.Wrapf(errTooManyImages, "%d images, %d slots", len(paths), MaxImages)
	}

	for i, path := range paths {
		res, err := Build(vol, pool, path)
		if err != nil {
			return slots, err
		}
		slots[i] = res
	}

	return slots, nil
}
