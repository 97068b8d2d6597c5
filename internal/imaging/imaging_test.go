package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), nil))
	return buf.Bytes()
}

func TestDecode_PNG(t *testing.T) {
	data := pngBytes(t, 10, 10)
	img, err := NewDecoder().Decode(data)
	require.NoError(t, err)
	require.Equal(t, MIMEPNG, img.MIMEType)
	require.Equal(t, 10, img.Width)
	require.Equal(t, 10, img.Height)
	require.Equal(t, data, img.Data)
}

func TestDecode_JPEG(t *testing.T) {
	img, err := NewDecoder().Decode(jpegBytes(t, 32, 16))
	require.NoError(t, err)
	require.Equal(t, MIMEJPEG, img.MIMEType)
	require.Equal(t, 32, img.Width)
	require.Equal(t, 16, img.Height)
}

func TestDecode_Empty(t *testing.T) {
	_, err := NewDecoder().Decode(nil)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestDecode_NotAnImage(t *testing.T) {
	_, err := NewDecoder().Decode([]byte("definitely not an image"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecode_RejectsGIF(t *testing.T) {
	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, pal, nil))

	_, err := NewDecoder().Decode(buf.Bytes())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecode_TruncatedPNG(t *testing.T) {
	data := pngBytes(t, 10, 10)
	_, err := NewDecoder().Decode(data[:len(data)/2])
	require.Error(t, err)
	require.Contains(t, err.Error(), "imaging")
}

func TestDecode_DownscalesWideImages(t *testing.T) {
	img, err := NewDecoder(WithMaxWidth(20)).Decode(pngBytes(t, 80, 40))
	require.NoError(t, err)
	require.Equal(t, MIMEJPEG, img.MIMEType)
	require.Equal(t, 20, img.Width)
	require.Equal(t, 10, img.Height)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 20, cfg.Width)
}

func TestDecode_KeepsNarrowImagesUntouched(t *testing.T) {
	data := pngBytes(t, 10, 10)
	img, err := NewDecoder(WithMaxWidth(100)).Decode(data)
	require.NoError(t, err)
	require.Equal(t, MIMEPNG, img.MIMEType)
	require.Equal(t, data, img.Data)
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h RGBA
// image, followed by an empty IDAT and IEND.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(data)))
		buf.Write(n[:])
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.BigEndian.PutUint32(n[:], crc32.ChecksumIEEE(body))
		buf.Write(n[:])
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	chunk("IHDR", ihdr)
	chunk("IDAT", nil)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestDecode_RejectsOversizedDimensionsBeforeDecoding(t *testing.T) {
	data := pngHeader(12000, 12000)
	require.Less(t, len(data), 100)

	_, err := NewDecoder().Decode(data)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestDecode_MaxPixelsOption(t *testing.T) {
	data := pngBytes(t, 10, 10)

	_, err := NewDecoder(WithMaxPixels(99)).Decode(data)
	require.ErrorIs(t, err, ErrTooLarge)

	img, err := NewDecoder(WithMaxPixels(100)).Decode(data)
	require.NoError(t, err)
	require.Equal(t, 10, img.Width)
}
