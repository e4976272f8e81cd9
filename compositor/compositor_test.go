package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subjectPNG builds a w×h NRGBA image: the left half is an opaque red
// subject, the right half fully transparent.
func subjectPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 0})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestGenerateSolidCanvas(t *testing.T) {
	for _, name := range Palette() {
		t.Run(name, func(t *testing.T) {
			data, err := GenerateSolidCanvas(7, 3, name)
			require.NoError(t, err)

			img := decodePNG(t, data)
			assert.Equal(t, 7, img.Bounds().Dx())
			assert.Equal(t, 3, img.Bounds().Dy())

			want := palette[name]
			r, g, b, a := img.At(6, 2).RGBA()
			assert.Equal(t, uint32(want.R)*0x101, r)
			assert.Equal(t, uint32(want.G)*0x101, g)
			assert.Equal(t, uint32(want.B)*0x101, b)
			assert.Equal(t, uint32(0xffff), a)
		})
	}
}

func TestGenerateSolidCanvas_UnknownColor(t *testing.T) {
	_, err := GenerateSolidCanvas(10, 10, "magenta")
	assert.ErrorIs(t, err, ErrUnknownColor)
}

func TestGenerateSolidCanvas_Empty(t *testing.T) {
	_, err := GenerateSolidCanvas(0, 10, White)
	assert.ErrorIs(t, err, ErrEmptyImage)
	_, err = GenerateSolidCanvas(10, 0, White)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDecodeForeground(t *testing.T) {
	fg, err := DecodeForeground(subjectPNG(t, 4, 2))
	require.NoError(t, err)

	assert.Equal(t, 4, fg.Width())
	assert.Equal(t, 2, fg.Height())
	assert.Equal(t, uint8(255), fg.Mask.AlphaAt(0, 0).A)
	assert.Equal(t, uint8(255), fg.Mask.AlphaAt(1, 1).A)
	assert.Equal(t, uint8(0), fg.Mask.AlphaAt(2, 0).A)
	assert.Equal(t, uint8(0), fg.Mask.AlphaAt(3, 1).A)
}

func TestDecodeForeground_NoAlpha(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	_, err := DecodeForeground(buf.Bytes())
	assert.ErrorIs(t, err, ErrNoAlpha)
}

func TestDecodeForeground_Garbage(t *testing.T) {
	_, err := DecodeForeground([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeForeground(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestComposite_Blend(t *testing.T) {
	fgBytes := subjectPNG(t, 4, 2)
	fg, err := DecodeForeground(fgBytes)
	require.NoError(t, err)

	bg, err := GenerateSolidCanvas(4, 2, Blue)
	require.NoError(t, err)

	out, err := Composite(fgBytes, bg, fg.Mask)
	require.NoError(t, err)
	img := decodePNG(t, out)

	// Opaque subject pixel keeps the foreground color.
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, []uint32{200 * 0x101, 10 * 0x101, 10 * 0x101, 0xffff}, []uint32{r, g, b, a})

	// Transparent pixel shows the background.
	r, g, b, a = img.At(3, 1).RGBA()
	assert.Equal(t, []uint32{0, 0, 0xffff, 0xffff}, []uint32{r, g, b, a})
}

func TestComposite_PartialMask(t *testing.T) {
	fgImg := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	fgImg.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, fgImg))

	mask := image.NewAlpha(image.Rect(0, 0, 1, 1))
	mask.SetAlpha(0, 0, color.Alpha{A: 128})

	bg, err := GenerateSolidCanvas(1, 1, Black)
	require.NoError(t, err)

	out, err := Composite(buf.Bytes(), bg, mask)
	require.NoError(t, err)

	c := color.RGBAModel.Convert(decodePNG(t, out).At(0, 0)).(color.RGBA)
	assert.Equal(t, uint8(128), c.R)
	assert.Equal(t, uint8(128), c.G)
	assert.Equal(t, uint8(128), c.B)
	assert.Equal(t, uint8(255), c.A)
}

func TestComposite_StretchesBackground(t *testing.T) {
	fgBytes := subjectPNG(t, 30, 20)
	fg, err := DecodeForeground(fgBytes)
	require.NoError(t, err)

	sizes := [][2]int{{1, 1}, {30, 20}, {300, 7}, {5, 500}}
	for _, sz := range sizes {
		canvas, err := GenerateSolidCanvas(sz[0], sz[1], White)
		require.NoError(t, err)

		out, err := Composite(fgBytes, canvas, fg.Mask)
		require.NoError(t, err)

		b := decodePNG(t, out).Bounds()
		assert.Equal(t, 30, b.Dx(), "canvas %v", sz)
		assert.Equal(t, 20, b.Dy(), "canvas %v", sz)
	}
}

func TestComposite_Deterministic(t *testing.T) {
	fgBytes := subjectPNG(t, 16, 9)
	fg, err := DecodeForeground(fgBytes)
	require.NoError(t, err)
	canvas, err := GenerateSolidCanvas(16, 9, Green)
	require.NoError(t, err)

	first, err := Composite(fgBytes, canvas, fg.Mask)
	require.NoError(t, err)
	second, err := Composite(fgBytes, canvas, fg.Mask)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
}

func TestComposite_Errors(t *testing.T) {
	fgBytes := subjectPNG(t, 4, 4)
	fg, err := DecodeForeground(fgBytes)
	require.NoError(t, err)
	canvas, err := GenerateSolidCanvas(4, 4, White)
	require.NoError(t, err)

	t.Run("MalformedBackground", func(t *testing.T) {
		_, err := Composite(fgBytes, []byte{0x89, 0x50, 0x4e, 0x47, 0x00}, fg.Mask)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("MalformedForeground", func(t *testing.T) {
		_, err := Composite([]byte("nope"), canvas, fg.Mask)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("MaskMismatch", func(t *testing.T) {
		_, err := Composite(fgBytes, canvas, image.NewAlpha(image.Rect(0, 0, 2, 2)))
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("NilMask", func(t *testing.T) {
		_, err := Composite(fgBytes, canvas, nil)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("ZeroArea", func(t *testing.T) {
		var buf bytes.Buffer
		empty := image.NewPaletted(image.Rect(0, 0, 0, 0), color.Palette{color.Transparent, color.White})
		require.NoError(t, gif.Encode(&buf, empty, nil))

		_, err := Composite(buf.Bytes(), canvas, fg.Mask)
		assert.ErrorIs(t, err, ErrEmptyImage)
		_, err = Composite(fgBytes, buf.Bytes(), fg.Mask)
		assert.ErrorIs(t, err, ErrEmptyImage)
	})
}

func TestComposite_TransparentBackgroundIsOpaque(t *testing.T) {
	fgBytes := subjectPNG(t, 6, 4)
	fg, err := DecodeForeground(fgBytes)
	require.NoError(t, err)
	var bg bytes.Buffer
	require.NoError(t, png.Encode(&bg, image.NewNRGBA(image.Rect(0, 0, 6, 4))))

	out, err := Composite(fgBytes, bg.Bytes(), fg.Mask)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	for y := range 4 {
		for x := range 6 {
			_, _, _, a := img.At(x, y).RGBA()
			assert.Equal(t, uint32(0xffff), a, "pixel %d,%d", x, y)
		}
	}
}

func TestPalette(t *testing.T) {
	assert.Equal(t, []string{Black, Blue, Green, Red, White}, Palette())
	assert.True(t, IsPaletteColor(White))
	assert.False(t, IsPaletteColor("purple"))
}

func TestProbe(t *testing.T) {
	cfg, err := Probe(subjectPNG(t, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Width)
	assert.Equal(t, 20, cfg.Height)

	_, err = Probe(nil)
	assert.ErrorIs(t, err, ErrDecode)
	_, err = Probe([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecode)
}
