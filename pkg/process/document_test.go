package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProcess_WritesConvertedSibling(t *testing.T) {
	server, _ := imageServer(t)
	docDir := t.TempDir()
	imgURL := server.URL + "/img.png"
	docPath := writeDoc(t, docDir, "readme.md", "# Title\n\n![]("+imgURL+")\n")

	p := NewProcessor(newTestRewriter(0), testEntry())
	outPath, err := p.Process(context.Background(), docPath, "images", false)
	require.NoError(t, err)

	assert.Equal(t, docPath+ConvertedSuffix, outPath)

	// Original untouched
	original, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.Contains(t, string(original), imgURL)

	converted, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\n![](images/"+localName(imgURL)+")\n", string(converted))

	// Image saved under the document's own images directory
	_, err = os.Stat(filepath.Join(docDir, "images", localName(imgURL)))
	assert.NoError(t, err)
}

func TestProcess_OverwriteInPlace(t *testing.T) {
	server, _ := imageServer(t)
	docDir := t.TempDir()
	imgURL := server.URL + "/img.png"
	docPath := writeDoc(t, docDir, "doc.md", "![x]("+imgURL+")\n")

	p := NewProcessor(newTestRewriter(0), testEntry())
	outPath, err := p.Process(context.Background(), docPath, "images", true)
	require.NoError(t, err)

	assert.Equal(t, docPath, outPath)
	data, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.Equal(t, "![x](images/"+localName(imgURL)+")\n", string(data))
}

func TestProcess_Idempotent(t *testing.T) {
	// A second overwrite run must change nothing and fetch nothing: every
	// reference already points at a local path
	server, hits := imageServer(t)
	docDir := t.TempDir()
	imgURL := server.URL + "/img.png"
	docPath := writeDoc(t, docDir, "doc.md", "![x]("+imgURL+")\n<img src=\""+imgURL+"\">\n")

	p := NewProcessor(newTestRewriter(0), testEntry())

	_, err := p.Process(context.Background(), docPath, "images", true)
	require.NoError(t, err)
	afterFirst, err := os.ReadFile(docPath)
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	_, err = p.Process(context.Background(), docPath, "images", true)
	require.NoError(t, err)
	afterSecond, err := os.ReadFile(docPath)
	require.NoError(t, err)

	assert.Equal(t, string(afterFirst), string(afterSecond))
	assert.Equal(t, int32(1), hits.Load(), "second run must perform zero fetches")
}

func TestProcess_AbsoluteOutDir(t *testing.T) {
	server, _ := imageServer(t)
	docDir := t.TempDir()
	assetDir := filepath.Join(t.TempDir(), "assets")
	imgURL := server.URL + "/pic.png"
	docPath := writeDoc(t, docDir, "doc.md", "![]("+imgURL+")\n")

	p := NewProcessor(newTestRewriter(0), testEntry())
	_, err := p.Process(context.Background(), docPath, assetDir, false)
	require.NoError(t, err)

	// Saved under the absolute directory, referenced relative to the document
	_, err = os.Stat(filepath.Join(assetDir, localName(imgURL)))
	assert.NoError(t, err)

	converted, err := os.ReadFile(docPath + ConvertedSuffix)
	require.NoError(t, err)
	rel, err := filepath.Rel(docDir, filepath.Join(assetDir, localName(imgURL)))
	require.NoError(t, err)
	assert.Contains(t, string(converted), filepath.ToSlash(rel))
}

func TestProcess_MixedSyntaxOrdering(t *testing.T) {
	server, _ := imageServer(t)
	docDir := t.TempDir()
	imgA := server.URL + "/a.png"
	imgB := server.URL + "/b.png"
	imgC := server.URL + "/c.png"

	text := "![inline](" + imgA + ")\n\n" +
		"![Ref][logo]\n\n" +
		"[logo]: " + imgB + " \"B\"\n\n" +
		"<img src='" + imgC + "' alt=\"c\">\n"
	docPath := writeDoc(t, docDir, "mixed.md", text)

	p := NewProcessor(newTestRewriter(0), testEntry())
	outPath, err := p.Process(context.Background(), docPath, "images", false)
	require.NoError(t, err)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	want := "![inline](images/" + localName(imgA) + ")\n\n" +
		"![Ref][logo]\n\n" +
		"[logo]: images/" + localName(imgB) + " \"B\"\n\n" +
		"<img src='images/" + localName(imgC) + "' alt=\"c\">\n"
	assert.Equal(t, want, string(got))
}

func TestProcess_FailedDownloadKeepsReference(t *testing.T) {
	docDir := t.TempDir()
	// Nothing listens here; the connection is refused immediately
	text := "![dead](http://127.0.0.1:1/none.png)\n"
	docPath := writeDoc(t, docDir, "doc.md", text)

	p := NewProcessor(newTestRewriter(0), testEntry())
	outPath, err := p.Process(context.Background(), docPath, "images", false)
	require.NoError(t, err, "reference-level failures must not escalate")

	got, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, text, string(got))
}

func TestProcess_UnreadableDocument(t *testing.T) {
	p := NewProcessor(newTestRewriter(0), testEntry())
	_, err := p.Process(context.Background(), filepath.Join(t.TempDir(), "missing.md"), "images", false)
	assert.Error(t, err)
}
