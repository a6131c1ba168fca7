package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"mdimg/pkg/utils"
)

// ConvertedSuffix is appended to the source filename when the original
// document is not overwritten.
const ConvertedSuffix = ".converted"

// Processor rewrites one document at a time: inline images first, then
// reference definitions, then raw <img> tags, all three passes sharing one
// per-document cache. Documents are independent; nothing carries over
// between Process calls except the underlying HTTP client.
type Processor struct {
	rewriter *Rewriter
	log      *logrus.Entry
}

// NewProcessor creates a Processor around the given rewriter.
func NewProcessor(rewriter *Rewriter, log *logrus.Entry) *Processor {
	return &Processor{
		rewriter: rewriter,
		log:      log,
	}
}

// Process reads the document at docPath, localizes its remote image
// references into outDir and writes the result. A relative outDir is
// resolved against the document's own directory and made absolute before any
// download, so behavior does not depend on the working directory. The result
// is written back to docPath when overwrite is set, otherwise to a sibling
// with the ConvertedSuffix appended. Returns the path actually written.
func (p *Processor) Process(ctx context.Context, docPath, outDir string, overwrite bool) (string, error) {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return "", fmt.Errorf("%w: reading '%s': %w", utils.ErrFilesystem, docPath, err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(docPath))
	if err != nil {
		return "", fmt.Errorf("%w: resolving directory of '%s': %w", utils.ErrFilesystem, docPath, err)
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(baseDir, outDir)
	}

	docLog := p.log.WithField("doc", docPath)
	docLog.WithField("out_dir", outDir).Debug("Processing document")

	cache := NewCache()
	text := string(data)
	text = p.rewriter.RewriteInline(ctx, text, outDir, baseDir, cache)
	text = p.rewriter.RewriteRefDefs(ctx, text, outDir, baseDir, cache)
	text = p.rewriter.RewriteHTML(ctx, text, outDir, baseDir, cache)

	outPath := docPath
	if !overwrite {
		outPath = docPath + ConvertedSuffix
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, outPath, err)
	}

	docLog.WithField("images", cache.Len()).Debug("Document processed")
	return outPath, nil
}
