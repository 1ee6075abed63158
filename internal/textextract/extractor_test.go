package textextract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	calls  int
	args   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls++
	f.args = append([]string{name}, args...)
	return f.stdout, f.stderr, f.err
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>CS 101</w:t></w:r><w:r><w:tab/><w:t>Intro to Computing</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Midterm: </w:t></w:r><w:r><w:t>03/10/2026</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestExtractDOCX(t *testing.T) {
	e := NewExtractor(Config{}, nil)

	res, err := e.Extract(context.Background(), buildDOCX(t, docxBody), constants.DOCX)
	require.NoError(t, err)
	assert.Equal(t, "CS 101 Intro to Computing\nMidterm: 03/10/2026", res.Text)
	assert.Equal(t, "docx-xml", res.Method)
	assert.Equal(t, constants.DOCX, res.Format)
}

func TestExtractDOCXCorrupt(t *testing.T) {
	e := NewExtractor(Config{}, nil)

	_, err := e.Extract(context.Background(), []byte("not a zip"), constants.DOCX)
	require.ErrorIs(t, err, common.ErrCorruptDocument)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	_, err = e.Extract(context.Background(), buf.Bytes(), constants.DOCX)
	require.ErrorIs(t, err, common.ErrCorruptDocument)

	_, err = e.Extract(context.Background(), buildDOCX(t, "<w:document><w:body>"), constants.DOCX)
	require.ErrorIs(t, err, common.ErrCorruptDocument)
}

func TestExtractDOCXPartLimit(t *testing.T) {
	doc := buildDOCX(t, docxBody)

	e := NewExtractor(Config{MaxDOCXPartBytes: 100}, nil)
	_, err := e.Extract(context.Background(), doc, constants.DOCX)
	require.ErrorIs(t, err, common.ErrDocumentTooLarge)

	e = NewExtractor(Config{MaxDOCXPartBytes: int64(len(docxBody))}, nil)
	_, err = e.Extract(context.Background(), doc, constants.DOCX)
	require.NoError(t, err)
}

func TestDOCXTextStopsAtLimit(t *testing.T) {
	lr := &io.LimitedReader{R: strings.NewReader(docxBody), N: 41}
	_, err := docxText(lr)
	require.Error(t, err)
	assert.LessOrEqual(t, lr.N, int64(0))
}

func TestExtractPDF(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("BIO 210  Genetics\r\n\n\n\nFinal exam   May 4, 2026\f")}
	e := NewExtractor(Config{Pdftotext: "/usr/bin/pdftotext"}, nil).WithRunner(runner)

	res, err := e.Extract(context.Background(), []byte("%PDF-1.7\n..."), constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, "BIO 210 Genetics\n\nFinal exam May 4, 2026", res.Text)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "/usr/bin/pdftotext", runner.args[0])
	assert.Equal(t, "-", runner.args[len(runner.args)-1])
}

func TestExtractPDFFailures(t *testing.T) {
	t.Run("missing header never runs the binary", func(t *testing.T) {
		runner := &fakeRunner{}
		e := NewExtractor(Config{}, nil).WithRunner(runner)
		_, err := e.Extract(context.Background(), []byte("hello"), constants.PDF)
		require.ErrorIs(t, err, common.ErrCorruptDocument)
		assert.Zero(t, runner.calls)
	})

	t.Run("decoder failure is corrupt", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("exit status 1"), stderr: []byte("Syntax Error: Couldn't find trailer dictionary")}
		e := NewExtractor(Config{}, nil).WithRunner(runner)
		res, err := e.Extract(context.Background(), []byte("%PDF-1.4 broken"), constants.PDF)
		require.ErrorIs(t, err, common.ErrCorruptDocument)
		assert.Contains(t, res.Warnings[0], "trailer")
	})

	t.Run("scanned pdf without text layer is empty", func(t *testing.T) {
		runner := &fakeRunner{stdout: []byte("\f\f  \n\f")}
		e := NewExtractor(Config{}, nil).WithRunner(runner)
		_, err := e.Extract(context.Background(), []byte("%PDF-1.4"), constants.PDF)
		require.ErrorIs(t, err, common.ErrEmptyDocument)
	})
}

func TestExtractPlainAndUnsupported(t *testing.T) {
	e := NewExtractor(Config{MaxBytes: 64}, nil)

	res, err := e.Extract(context.Background(), []byte("\ufeffHIST 300\tModern Europe\n"), constants.TXT)
	require.NoError(t, err)
	assert.Equal(t, "HIST 300 Modern Europe", res.Text)

	_, err = e.Extract(context.Background(), []byte("   \n\t "), constants.TXT)
	require.ErrorIs(t, err, common.ErrEmptyDocument)

	_, err = e.Extract(context.Background(), []byte{0xff, 0xfe, 0xfd}, constants.TXT)
	require.ErrorIs(t, err, common.ErrCorruptDocument)

	_, err = e.Extract(context.Background(), []byte("x"), constants.DocumentFormat("RTF"))
	require.ErrorIs(t, err, common.ErrUnsupportedFormat)

	_, err = e.Extract(context.Background(), bytes.Repeat([]byte("a"), 65), constants.TXT)
	require.ErrorIs(t, err, common.ErrDocumentTooLarge)
	assert.False(t, errors.Is(err, common.ErrUnsupportedFormat))
	assert.Equal(t, "DOCUMENT_TOO_LARGE", common.ErrorCode(err))
}

func TestNormalize(t *testing.T) {
	in := "Line one   \r\nLine two\t\ttabbed\n\n\n\n-----\nEnd"
	assert.Equal(t, "Line one\nLine two tabbed\n\nEnd", Normalize(in))
	assert.Equal(t, "", Normalize(""))
}
