// Package compositor generates solid backgrounds and alpha-composites an
// extracted subject over a background image.
//
// All functions are pure transforms over byte buffers. Output is always PNG,
// encoded deterministically so that identical inputs yield identical bytes.
package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode indicates that an input buffer is not a decodable image.
	ErrDecode = errors.New("image decode failed")
	// ErrUnknownColor indicates a color name outside the palette.
	ErrUnknownColor = errors.New("unknown color")
	// ErrEmptyImage indicates an image with zero width or height.
	ErrEmptyImage = errors.New("empty image")
	// ErrNoAlpha indicates a foreground whose color model carries no alpha channel.
	ErrNoAlpha = errors.New("image has no alpha channel")
)

var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// Foreground is a decoded subject image together with its opacity mask.
type Foreground struct {
	Image image.Image
	Mask  *image.Alpha
}

// Width returns the foreground width in pixels.
func (f *Foreground) Width() int { return f.Image.Bounds().Dx() }

// Height returns the foreground height in pixels.
func (f *Foreground) Height() int { return f.Image.Bounds().Dy() }

// DecodeForeground decodes a segmented subject and extracts its alpha mask.
// The image must carry an alpha channel.
func DecodeForeground(data []byte) (*Foreground, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	if !hasAlpha(img) {
		return nil, ErrNoAlpha
	}
	return &Foreground{Image: img, Mask: ExtractMask(img)}, nil
}

// ExtractMask returns the alpha channel of img as a single-channel mask whose
// bounds start at the origin.
func ExtractMask(img image.Image) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			mask.Pix[y*mask.Stride+x] = uint8(a >> 8)
		}
	}
	return mask
}

// GenerateSolidCanvas returns an opaque PNG of the given size filled with the
// named palette color.
func GenerateSolidCanvas(width, height int, colorName string) ([]byte, error) {
	c, ok := palette[colorName]
	if !ok {
		return nil, fmt.Errorf("%q: %w", colorName, ErrUnknownColor)
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("canvas %dx%d: %w", width, height, ErrEmptyImage)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return encode(canvas)
}

// Composite paints the foreground over the background using mask as the
// per-pixel opacity selector. The background is stretched to exactly the
// foreground's size; aspect ratio is not preserved.
func Composite(foreground, background []byte, mask *image.Alpha) ([]byte, error) {
	fg, err := decode(foreground)
	if err != nil {
		return nil, fmt.Errorf("foreground: %w", err)
	}
	bg, err := decode(background)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	fb := fg.Bounds()
	if mask == nil || mask.Bounds().Dx() != fb.Dx() || mask.Bounds().Dy() != fb.Dy() {
		return nil, fmt.Errorf("mask does not match foreground %dx%d: %w", fb.Dx(), fb.Dy(), ErrDecode)
	}

	dst := image.NewRGBA(image.Rect(0, 0, fb.Dx(), fb.Dy()))
	draw.BiLinear.Scale(dst, dst.Bounds(), bg, bg.Bounds(), draw.Src, nil)

	mb := mask.Bounds()
	for y := 0; y < fb.Dy(); y++ {
		for x := 0; x < fb.Dx(); x++ {
			i := dst.PixOffset(x, y)
			px := dst.Pix[i : i+4 : i+4]
			// Output is opaque even over a transparent background.
			px[3] = 0xff
			m := uint32(mask.AlphaAt(mb.Min.X+x, mb.Min.Y+y).A)
			if m == 0 {
				continue
			}
			fc := color.NRGBAModel.Convert(fg.At(fb.Min.X+x, fb.Min.Y+y)).(color.NRGBA)
			px[0] = blend(fc.R, px[0], m)
			px[1] = blend(fc.G, px[1], m)
			px[2] = blend(fc.B, px[2], m)
		}
	}
	return encode(dst)
}

// blend linearly interpolates between fg and bg by m/255, rounding to nearest.
func blend(fg, bg uint8, m uint32) uint8 {
	return uint8((uint32(fg)*m + uint32(bg)*(255-m) + 127) / 255)
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrDecode
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return nil, ErrEmptyImage
	}
	return img, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

func hasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Alpha, *image.Alpha16:
		return true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Probe reports the dimensions of an encoded image without decoding its
// pixels. It fails with ErrDecode or ErrEmptyImage.
func Probe(data []byte) (image.Config, error) {
	if len(data) == 0 {
		return image.Config{}, ErrDecode
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		return image.Config{}, ErrEmptyImage
	}
	return cfg, nil
}
