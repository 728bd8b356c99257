package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
)

// bucketPrefix namespaces every stored image path.
const bucketPrefix = "order-images/"

// UploadImage decodes base64 content, stores it under a unique path in the
// order-images bucket, and returns that path.
func (g *Gateway) UploadImage(ctx context.Context, base64Data, name string) (string, error) {
	// Tolerate data-URL prefixes from the UI.
	if idx := strings.Index(base64Data, ","); idx != -1 && strings.Contains(base64Data[:idx], "base64") {
		base64Data = base64Data[idx+1:]
	}
	content, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return "", cdperr.Validation("image content is not valid base64: %s", err.Error())
	}
	if len(content) == 0 {
		return "", cdperr.Validation("image content is empty")
	}

	storagePath := bucketPrefix + uuid.NewString() + "_" + sanitizeImageName(name)
	row := &model.ImageRow{Path: storagePath, Name: name, Content: content}

	err = g.executeRequest(ctx, "images.upload", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Create(row).Error
	})
	if err != nil {
		return "", err
	}
	return storagePath, nil
}

// FetchImage returns the stored bytes for a verified path.
func (g *Gateway) FetchImage(ctx context.Context, storagePath string) ([]byte, error) {
	var row model.ImageRow
	err := g.executeRequest(ctx, "images.fetch", func(ctx context.Context) error {
		return g.db.WithContext(ctx).First(&row, "path = ?", storagePath).Error
	})
	if err != nil {
		return nil, err
	}
	return row.Content, nil
}

// SignedImageURL issues a URL carrying a one-hour token for the path.
func (g *Gateway) SignedImageURL(storagePath string) (string, error) {
	if !strings.HasPrefix(storagePath, bucketPrefix) {
		return "", cdperr.Validation("image path %q is outside the bucket", storagePath)
	}
	claims := jwt.MapClaims{
		"path": storagePath,
		"exp":  time.Now().Add(signedURLTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign image url: %w", err)
	}
	return "/api/images/" + url.PathEscape(storagePath) + "?token=" + token, nil
}

// VerifyImageToken checks a signed-URL token and returns the path it grants.
func (g *Gateway) VerifyImageToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return g.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: image token rejected", cdperr.ErrTerminalRemote)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: image token claims unreadable", cdperr.ErrTerminalRemote)
	}
	p, _ := claims["path"].(string)
	if p == "" {
		return "", fmt.Errorf("%w: image token carries no path", cdperr.ErrTerminalRemote)
	}
	return p, nil
}

// DeleteImage removes an image by storage path or by a previously signed
// URL.
func (g *Gateway) DeleteImage(ctx context.Context, urlOrPath string) error {
	storagePath := urlOrPath
	if strings.HasPrefix(urlOrPath, "/api/images/") || strings.Contains(urlOrPath, "://") {
		if u, err := url.Parse(urlOrPath); err == nil {
			unescaped, err := url.PathUnescape(path.Base(u.Path))
			if err == nil && unescaped != "" {
				storagePath = unescaped
			}
		}
	}
	if !strings.HasPrefix(storagePath, bucketPrefix) {
		// Signed URLs escape the slash, so the path survives as one segment.
		storagePath = bucketPrefix + storagePath
	}
	return g.executeRequest(ctx, "images.delete", func(ctx context.Context) error {
		return g.db.WithContext(ctx).Delete(&model.ImageRow{}, "path = ?", storagePath).Error
	})
}

func sanitizeImageName(name string) string {
	name = path.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
