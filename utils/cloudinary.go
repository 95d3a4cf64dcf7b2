package utils

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Image upload limits
const (
	MaxImages     = 5
	MaxImageBytes = 5 << 20
)

var allowedImageExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// ErrMediaUnavailable is returned when no media storage is configured.
var ErrMediaUnavailable = errors.New("media storage is not configured")

// Uploader stores submission images.
type Uploader interface {
	Upload(ctx context.Context, file multipart.File, folder string) (string, error)
	Delete(ctx context.Context, imageURL string) error
}

// ValidateImage checks an uploaded file against the size and extension limits.
func ValidateImage(fh *multipart.FileHeader) error {
	if fh.Size > MaxImageBytes {
		return fmt.Errorf("%s exceeds 5MB", fh.Filename)
	}
	if !allowedImageExt[strings.ToLower(filepath.Ext(fh.Filename))] {
		return fmt.Errorf("%s: only jpg, jpeg, png and webp are allowed", fh.Filename)
	}
	return nil
}

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

// Upload stores the file under folder and returns its secure URL.
func (c *Cloudinary) Upload(ctx context.Context, file multipart.File, folder string) (string, error) {
	resp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder: folder,
	})
	if err != nil {
		return "", fmt.Errorf("upload error: %w", err)
	}
	return resp.SecureURL, nil
}

// Delete removes an image using its full URL.
func (c *Cloudinary) Delete(ctx context.Context, imageURL string) error {
	publicID, err := extractPublicID(imageURL)
	if err != nil {
		return fmt.Errorf("could not extract public ID: %w", err)
	}

	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	return nil
}

// NoMedia is used when Cloudinary credentials are missing.
type NoMedia struct{}

func (NoMedia) Upload(context.Context, multipart.File, string) (string, error) {
	return "", ErrMediaUnavailable
}

func (NoMedia) Delete(context.Context, string) error { return nil }

// extractPublicID turns
// https://res.cloudinary.com/demo/image/upload/v1234567890/projects/abc123.jpg
// into projects/abc123.
func extractPublicID(imageURL string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	idx := -1
	for i, p := range parts {
		if p == "upload" {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(parts)-1 {
		return "", fmt.Errorf("invalid cloudinary URL format")
	}

	rest := parts[idx+1:]
	if len(rest) > 1 && isVersion(rest[0]) {
		rest = rest[1:]
	}
	last := rest[len(rest)-1]
	rest[len(rest)-1] = strings.TrimSuffix(last, path.Ext(last))
	return path.Join(rest...), nil
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
