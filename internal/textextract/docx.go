package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

const docxBodyPart = "word/document.xml"

// extractDOCX walks the main document part of a WordprocessingML package.
// Paragraphs and breaks become newlines, tabs stay tabs. The part may not
// decompress to more than maxPart bytes.
func extractDOCX(data []byte, maxPart int64) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, corrupt("docx is not a valid zip container", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return Result{}, corrupt("docx has no "+docxBodyPart, nil)
	}
	if body.UncompressedSize64 > uint64(maxPart) {
		return Result{}, tooLarge(fmt.Sprintf("%s declares %d bytes, limit is %d", docxBodyPart, body.UncompressedSize64, maxPart))
	}

	rc, err := body.Open()
	if err != nil {
		return Result{}, corrupt("open "+docxBodyPart, err)
	}
	defer rc.Close()

	// the declared size can lie, so the reader is bounded too
	lr := &io.LimitedReader{R: rc, N: maxPart + 1}
	text, err := docxText(lr)
	if lr.N <= 0 {
		return Result{}, tooLarge(fmt.Sprintf("%s is larger than %d bytes", docxBodyPart, maxPart))
	}
	if err != nil {
		return Result{}, corrupt("parse "+docxBodyPart, err)
	}
	return Result{Text: text, Pages: 1, Method: "docx-xml"}, nil
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func corrupt(msg string, cause error) error {
	if cause != nil {
		cause = fmt.Errorf("%w: %v", common.ErrCorruptDocument, cause)
	} else {
		cause = common.ErrCorruptDocument
	}
	return common.NewAppError("CORRUPT_DOCUMENT", msg, cause)
}

func tooLarge(msg string) error {
	return common.NewAppError("DOCUMENT_TOO_LARGE", msg, common.ErrDocumentTooLarge)
}
