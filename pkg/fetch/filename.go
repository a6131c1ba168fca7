package fetch

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"mdimg/pkg/utils"
)

const (
	defaultStem = "image" // Stem used when the URL path yields no usable basename
	fallbackExt = ".bin"  // Extension used when neither the URL nor the Content-Type provide one
)

// LocalFilename derives the on-disk filename for a downloaded image from its
// source URL and the response Content-Type. It is a pure function of its
// inputs: the same URL always maps to the same name (which is what makes the
// already-downloaded skip in Download work), and two URLs that share a
// basename are disambiguated by a fingerprint of the full URL, spliced in as
// stem_fingerprint.ext.
func LocalFilename(rawURL, contentType string, log *logrus.Entry) string {
	segment := ""
	if u, err := url.Parse(rawURL); err == nil {
		decoded := u.Path
		if unescaped, uerr := url.PathUnescape(u.Path); uerr == nil {
			decoded = unescaped
		}
		segment = path.Base(decoded)
		if segment == "." || segment == "/" {
			segment = ""
		}
	}

	ext := path.Ext(segment)
	stem := utils.SanitizeFilename(strings.TrimSuffix(segment, ext))
	if stem == "" {
		stem = defaultStem
	}

	if ext == "" && contentType != "" {
		ext = extensionForContentType(contentType, log)
	}
	if ext == "" {
		ext = fallbackExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return stem + "_" + utils.URLFingerprint(rawURL) + ext
}

// extensionForContentType guesses a file extension from a Content-Type header
// value, ignoring any parameters after ';'. Returns "" when no extension can
// be determined.
func extensionForContentType(contentType string, log *logrus.Entry) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		log.Warnf("Could not parse Content-Type header '%s': %v", contentType, err)
		return ""
	}

	// Prefer common extensions for well-known image types; the platform MIME
	// table is inconsistent about e.g. .jpe vs .jpg
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	}

	extensions, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(extensions) == 0 {
		return ""
	}
	return extensions[0]
}
