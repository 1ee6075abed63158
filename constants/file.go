package constants

import "strings"

// DocumentFormat is the declared format of an uploaded syllabus.
type DocumentFormat string

const (
	PDF  DocumentFormat = "PDF"
	DOCX DocumentFormat = "DOCX"
	TXT  DocumentFormat = "TXT"
)

// DocumentFormats holds the formats accepted for ingestion.
var DocumentFormats = []DocumentFormat{PDF, DOCX, TXT}

// ContentTypes maps formats to the MIME type stored alongside the blob.
var ContentTypes = map[DocumentFormat]string{
	PDF:  "application/pdf",
	DOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	TXT:  "text/plain; charset=utf-8",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FormatFromExt maps a file extension (with or without the dot) to a format.
func FormatFromExt(ext string) (DocumentFormat, bool) {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF, true
	case "docx":
		return DOCX, true
	case "txt", "text":
		return TXT, true
	}
	return "", false
}

// ParseDocumentFormat accepts a declared format such as "pdf", "DOCX" or ".txt".
func ParseDocumentFormat(s string) (DocumentFormat, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, f := range DocumentFormats {
		if strings.EqualFold(s, string(f)) {
			return f, true
		}
	}
	return FormatFromExt(s)
}
