package paperwork

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	stddraw "image/draw"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	PhotoSize     = 256
	MaxPhotoBytes = 5 << 20
)

var PhotoMimes = []string{"image/png", "image/jpeg", "image/webp"}

// DecodeDataURL returns the bytes and sniffed mime type of a base64 data URL.
// The declared mime type must be allowed and must match the content.
func DecodeDataURL(value string, allowedMimes []string, maxBytes int) ([]byte, string, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, "", errors.New("empty data url")
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !strings.HasPrefix(raw, "data:") || !ok || meta == "" {
		return nil, "", errors.New("invalid data url")
	}
	mime, isBase64 := strings.CutSuffix(strings.ToLower(meta), ";base64")
	if !isBase64 {
		return nil, "", errors.New("data url must be base64")
	}
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return nil, "", errors.New("missing data url mime type")
	}
	if len(allowedMimes) > 0 && !containsFold(allowedMimes, mime) {
		return nil, "", errors.New("unsupported data url mime type")
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+3 {
		return nil, "", errors.New("data url exceeds max size")
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errors.New("unable to decode data url")
	}
	if len(decoded) == 0 {
		return nil, "", errors.New("empty data url content")
	}
	if maxBytes > 0 && len(decoded) > maxBytes {
		return nil, "", errors.New("data url exceeds max size")
	}
	detected := http.DetectContentType(decoded)
	if !strings.EqualFold(detected, mime) {
		return nil, "", errors.New("data url mime does not match content")
	}
	return decoded, detected, nil
}

// ProcessPhoto center-crops an applicant photo to a square, scales it to
// PhotoSize and re-encodes it as PNG.
func ProcessPhoto(raw []byte) ([]byte, error) {
	if !containsFold(PhotoMimes, http.DetectContentType(raw)) {
		return nil, errors.New("photo must be png, jpeg, or webp")
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		decoded, webpErr := webp.Decode(bytes.NewReader(raw))
		if webpErr != nil {
			return nil, errors.New("unable to decode photo")
		}
		img = decoded
	}

	bounds := img.Bounds()
	side := min(bounds.Dx(), bounds.Dy())
	if side <= 0 {
		return nil, errors.New("invalid image dimensions")
	}
	offset := image.Point{
		X: bounds.Min.X + (bounds.Dx()-side)/2,
		Y: bounds.Min.Y + (bounds.Dy()-side)/2,
	}
	square := image.NewRGBA(image.Rect(0, 0, side, side))
	stddraw.Draw(square, square.Bounds(), img, offset, stddraw.Src)

	scaled := image.NewRGBA(image.Rect(0, 0, PhotoSize, PhotoSize))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), square, square.Bounds(), xdraw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, scaled); err != nil {
		return nil, errors.New("unable to encode photo")
	}
	return out.Bytes(), nil
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), value) {
			return true
		}
	}
	return false
}
