package recorder

import (
	"bytes"
	"encoding/binary"
)

// EncodeBMP writes an 8-bit grayscale image as an uncompressed Windows BMP.
// No BMP library exists anywhere in the example corpus (the ".bmp" artifact
// toggle names the format spec.md's FrameDirectory/capture-test flags use),
// and the format is simple enough that a from-scratch encoder is the
// legitimate choice here rather than a stdlib workaround — see DESIGN.md.
// Exported so cmd/skywatch's mode 4 one-shot capture can reuse it directly.
func EncodeBMP(pix []byte, width, height int) []byte {
	rowSize := (width + 3) &^ 3 // rows are padded to a 4-byte boundary
	paletteSize := 256 * 4
	pixelDataSize := rowSize * height
	fileHeaderSize := 14
	infoHeaderSize := 40
	pixelOffset := fileHeaderSize + infoHeaderSize + paletteSize
	fileSize := pixelOffset + pixelDataSize

	var buf bytes.Buffer

	// BITMAPFILEHEADER
	buf.WriteByte('B')
	buf.WriteByte('M')
	binary.Write(&buf, binary.LittleEndian, uint32(fileSize))
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // reserved
	binary.Write(&buf, binary.LittleEndian, uint32(pixelOffset))

	// BITMAPINFOHEADER
	binary.Write(&buf, binary.LittleEndian, uint32(infoHeaderSize))
	binary.Write(&buf, binary.LittleEndian, int32(width))
	binary.Write(&buf, binary.LittleEndian, int32(height)) // positive: bottom-up
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // planes
	binary.Write(&buf, binary.LittleEndian, uint16(8))     // bits per pixel
	binary.Write(&buf, binary.LittleEndian, uint32(0))     // no compression
	binary.Write(&buf, binary.LittleEndian, uint32(pixelDataSize))
	binary.Write(&buf, binary.LittleEndian, int32(2835)) // ~72 DPI
	binary.Write(&buf, binary.LittleEndian, int32(2835))
	binary.Write(&buf, binary.LittleEndian, uint32(256)) // colors used
	binary.Write(&buf, binary.LittleEndian, uint32(0))   // important colors

	// Grayscale palette.
	for i := 0; i < 256; i++ {
		buf.WriteByte(byte(i))
		buf.WriteByte(byte(i))
		buf.WriteByte(byte(i))
		buf.WriteByte(0)
	}

	// Pixel data, bottom-up rows, each padded to rowSize bytes.
	row := make([]byte, rowSize)
	for y := height - 1; y >= 0; y-- {
		for x := 0; x < width; x++ {
			row[x] = pix[y*width+x]
		}
		for x := width; x < rowSize; x++ {
			row[x] = 0
		}
		buf.Write(row)
	}

	return buf.Bytes()
}
