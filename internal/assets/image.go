package assets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"chatline/backend/internal/config"

	"github.com/disintegration/imaging"
)

var ErrInvalidImage = errors.New("assets: invalid image")

type resizeMode int

const (
	// fitWidth shrinks to Width keeping the aspect ratio; smaller images are
	// left alone.
	fitWidth resizeMode = iota
	// fill crops to exactly Width x Height around the centre.
	fill
	// thumbnail scales and crops to Width x Height.
	thumbnail
)

// Preset names an image constraint applied before upload.
type Preset struct {
	Name   string
	Width  int
	Height int
	mode   resizeMode
}

var (
	PresetChat    = Preset{Name: "chat", Width: config.ChatImageMaxWidth, mode: fitWidth}
	PresetAvatar  = Preset{Name: "avatars", Width: config.AvatarSize, Height: config.AvatarSize, mode: fill}
	PresetProfile = Preset{Name: "profiles", Width: config.ProfilePicSize, Height: config.ProfilePicSize, mode: thumbnail}
)

// Transform decodes data, applies p and re-encodes it as JPEG.
func Transform(data []byte, p Preset) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	switch p.mode {
	case fitWidth:
		if img.Bounds().Dx() > p.Width {
			img = imaging.Resize(img, p.Width, 0, imaging.Lanczos)
		}
	case fill:
		img = imaging.Fill(img, p.Width, p.Height, imaging.Center, imaging.Lanczos)
	case thumbnail:
		img = imaging.Thumbnail(img, p.Width, p.Height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(config.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.Name, err)
	}
	return buf.Bytes(), nil
}

// DecodeInline accepts a bare base64 string or a data URI
// ("data:image/png;base64,...") and returns the raw bytes.
func DecodeInline(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, ErrInvalidImage
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, ErrInvalidImage
		}
	}
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	return data, nil
}
