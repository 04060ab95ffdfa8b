package runtime

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// Scheme prefix for images that must be decrypted by their owning extension
// before they can be fetched normally: drm://<extensionId>/<urlencoded-url>.
const drmScheme = "drm://"

// DRMRef is a parsed drm:// URL.
type DRMRef struct {
	ExtensionID string
	ActualURL   string
}

// IsDRMURL reports whether raw uses the DRM scheme.
func IsDRMURL(raw string) bool {
	return strings.HasPrefix(raw, drmScheme)
}

// BuildDRMURL encodes an extension id and image URL into a drm:// URL.
func BuildDRMURL(extensionID, actualURL string) string {
	return drmScheme + extensionID + "/" + url.QueryEscape(actualURL)
}

// ParseDRMURL parses a drm:// URL. It is pure and does no network work;
// ok is false for anything that is not a well-formed DRM URL.
func ParseDRMURL(raw string) (DRMRef, bool) {
	rest, found := strings.CutPrefix(raw, drmScheme)
	if !found {
		return DRMRef{}, false
	}
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return DRMRef{}, false
	}
	actual, err := url.QueryUnescape(rest[idx+1:])
	if err != nil || actual == "" {
		return DRMRef{}, false
	}
	return DRMRef{ExtensionID: rest[:idx], ActualURL: actual}, true
}

// DRMResolver resolves drm:// URLs into fetchable URIs by delegating
// decryption to the owning extension through the bridge.
type DRMResolver struct {
	bridge *Bridge
	log    *slog.Logger
}

// NewDRMResolver returns a resolver backed by bridge.
func NewDRMResolver(bridge *Bridge, log *slog.Logger) *DRMResolver {
	if log == nil {
		log = slog.Default()
	}
	return &DRMResolver{bridge: bridge, log: log}
}

// Resolve turns raw into a fetchable URI. Non-DRM URLs pass through
// unchanged with ok=true. A decrypt failure returns the input unchanged
// with ok=false: a single broken page must not block the chapter, the
// caller just marks the page unresolved.
func (r *DRMResolver) Resolve(ctx context.Context, raw string) (string, bool) {
	ref, isDRM := ParseDRMURL(raw)
	if !isDRM {
		if IsDRMURL(raw) {
			r.log.Warn("malformed DRM URL", "url", raw)
			return raw, false
		}
		return raw, true
	}

	resolved, err := r.bridge.DecryptImage(ctx, ref.ExtensionID, ref.ActualURL)
	if err != nil || resolved == "" {
		r.log.Warn("DRM decrypt failed", "extension", ref.ExtensionID, "error", err)
		return raw, false
	}
	return resolved, true
}
