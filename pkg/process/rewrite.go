package process

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"

	"mdimg/pkg/fetch"
)

// The three image syntaxes are recognized by pattern matching over the raw
// document text; unmatched text is never touched. RE2 has no backreferences,
// so the <img> pattern captures double- and single-quoted src values as
// separate alternatives and the replacement reuses whichever quote matched.
var (
	// Inline image: ![alt](url "title"), url free of whitespace, title optional
	inlineImageRe = regexp.MustCompile(`!\[([^\]]*)\]\((\S+?)(?:\s+"([^"]*)")?\)`)

	// Reference definition: a line of the form [id]: url "title"
	refDefRe = regexp.MustCompile(`(?m)^\[([^\]]+)\]:[ \t]*(\S+)(?:[ \t]+"([^"]*)")?[ \t]*$`)

	// HTML embed: <img ... src="url" ...>, either quote style, tag may span lines
	htmlImgRe       = regexp.MustCompile(`(?i)<img\b[^>]*?\bsrc=(?:"([^"]*)"|'([^']*)')[^>]*?>`)
	htmlSrcDoubleRe = regexp.MustCompile(`(?i)\bsrc="[^"]*"`)
	htmlSrcSingleRe = regexp.MustCompile(`(?i)\bsrc='[^']*'`)
)

// RefDef is one reference definition, binding an id to a URL and optional title.
type RefDef struct {
	URL   string
	Title string
}

// ParseRefDefs extracts every reference definition in the document, keyed by
// id. Duplicate ids keep the last definition.
func ParseRefDefs(text string) map[string]RefDef {
	defs := make(map[string]RefDef)
	for _, m := range refDefRe.FindAllStringSubmatch(text, -1) {
		defs[m[1]] = RefDef{URL: m[2], Title: m[3]}
	}
	return defs
}

// Rewriter substitutes remote image references in document text with local
// relative paths, downloading each distinct URL at most once per document.
// Rewriting is best-effort per match: a non-remote URL or a failed download
// leaves the match byte-identical to its input.
type Rewriter struct {
	fetcher *fetch.Fetcher
	log     *logrus.Entry
}

// NewRewriter creates a Rewriter using the given fetcher.
func NewRewriter(fetcher *fetch.Fetcher, log *logrus.Entry) *Rewriter {
	return &Rewriter{
		fetcher: fetcher,
		log:     log,
	}
}

// resolveLocal downloads rawURL into outDir through the cache and returns the
// path to reference from a document living in baseDir, with forward slashes.
// ok is false when the URL is not remote or the download failed; the caller
// emits the original match unchanged. Download failures have already been
// logged by the fetcher.
func (r *Rewriter) resolveLocal(ctx context.Context, rawURL, outDir, baseDir string, cache *Cache) (local string, ok bool) {
	if !IsRemoteURL(rawURL) {
		return "", false
	}
	local, err := cache.Resolve(rawURL, func(u string) (string, error) {
		saved, fetchErr := r.fetcher.Download(ctx, u, outDir)
		if fetchErr != nil {
			return "", fetchErr
		}
		rel, relErr := filepath.Rel(baseDir, saved)
		if relErr != nil {
			r.log.Warnf("Could not compute path of '%s' relative to '%s': %v. Using filename only.", saved, baseDir, relErr)
			rel = filepath.Base(saved)
		}
		return filepath.ToSlash(rel), nil
	})
	if err != nil {
		return "", false
	}
	return local, true
}

// RewriteInline handles ![alt](url "title") references, replacing only the
// URL segment and preserving the alt text and optional title.
func (r *Rewriter) RewriteInline(ctx context.Context, text, outDir, baseDir string, cache *Cache) string {
	return inlineImageRe.ReplaceAllStringFunc(text, func(match string) string {
		m := inlineImageRe.FindStringSubmatch(match)
		alt, rawURL, title := m[1], m[2], m[3]

		local, ok := r.resolveLocal(ctx, rawURL, outDir, baseDir, cache)
		if !ok {
			return match
		}
		if title != "" {
			return fmt.Sprintf(`![%s](%s "%s")`, alt, local, title)
		}
		return fmt.Sprintf("![%s](%s)", alt, local)
	})
}

// RewriteRefDefs handles reference definition lines ([id]: url "title").
// Only the definition line changes; body usages ![alt][id] resolve through
// the id and are never touched.
func (r *Rewriter) RewriteRefDefs(ctx context.Context, text, outDir, baseDir string, cache *Cache) string {
	return refDefRe.ReplaceAllStringFunc(text, func(match string) string {
		m := refDefRe.FindStringSubmatch(match)
		id, rawURL, title := m[1], m[2], m[3]

		local, ok := r.resolveLocal(ctx, rawURL, outDir, baseDir, cache)
		if !ok {
			return match
		}
		if title != "" {
			return fmt.Sprintf(`[%s]: %s "%s"`, id, local, title)
		}
		return fmt.Sprintf("[%s]: %s", id, local)
	})
}

// RewriteHTML handles <img ...> tags, replacing only the quoted src value
// inside the matched tag with the same quote character; all other attributes
// and tag content are preserved verbatim.
func (r *Rewriter) RewriteHTML(ctx context.Context, text, outDir, baseDir string, cache *Cache) string {
	return htmlImgRe.ReplaceAllStringFunc(text, func(tag string) string {
		idx := htmlImgRe.FindStringSubmatchIndex(tag)
		src, quote := "", `"`
		if idx[2] >= 0 {
			src = tag[idx[2]:idx[3]]
		} else {
			src, quote = tag[idx[4]:idx[5]], `'`
		}

		local, ok := r.resolveLocal(ctx, src, outDir, baseDir, cache)
		if !ok {
			return tag
		}

		srcRe := htmlSrcDoubleRe
		if quote == `'` {
			srcRe = htmlSrcSingleRe
		}
		// Replace only the first src attribute, the one the tag match captured
		loc := srcRe.FindStringIndex(tag)
		if loc == nil {
			return tag
		}
		return tag[:loc[0]] + "src=" + quote + local + quote + tag[loc[1]:]
	})
}
