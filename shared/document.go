package shared

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedEncoding marks documents that are not valid UTF-8 text.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	// ErrUnreadableDocument marks .docx and .pdf files that cannot be parsed.
	ErrUnreadableDocument = errors.New("unreadable document")
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var supportedExtensions = map[string]bool{
	".txt":  true,
	".docx": true,
	".pdf":  true,
}

// CheckExtension rejects file names the pipeline cannot read.
func CheckExtension(fileName string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !supportedExtensions[ext] {
		return fmt.Errorf("Unsupported file type: %s", ext)
	}
	return nil
}

// ExtractText decodes an uploaded text document with normalized line endings.
func ExtractText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", ErrUnsupportedEncoding
	}
	return normalizeNewlines(string(data)), nil
}

// ExtractDocument reads the text of an upload according to its extension.
// Paragraphs are separated by blank lines.
func ExtractDocument(fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".docx":
		paragraphs, err := readDocx(data)
		if err != nil {
			return "", err
		}
		return normalizeNewlines(strings.Join(paragraphs, "\n\n")), nil
	case ".pdf":
		text, err := readPDF(data)
		if err != nil {
			return "", err
		}
		return normalizeNewlines(strings.ToValidUTF8(text, "")), nil
	default:
		return ExtractText(data)
	}
}

// RenderDocument encodes translated paragraphs in the output format of the
// source: .docx stays .docx, everything else becomes plain text.
func RenderDocument(fileName string, paragraphs []string) ([]byte, error) {
	if outputExt(fileName) == ".docx" {
		return writeDocx(paragraphs)
	}
	return []byte(JoinParagraphs(paragraphs)), nil
}

// ContentType is the media type served for a result file name.
func ContentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".docx") {
		return docxContentType
	}
	return "text/plain; charset=utf-8"
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func outputExt(fileName string) string {
	if strings.EqualFold(filepath.Ext(fileName), ".docx") {
		return ".docx"
	}
	return ".txt"
}

// SplitParagraphs splits on blank lines and drops empty paragraphs.
func SplitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BatchBlocks groups paragraphs so no batch exceeds maxChars characters,
// except a single paragraph longer than maxChars which forms its own batch.
func BatchBlocks(blocks []string, maxChars int) [][]string {
	var batches [][]string
	var batch []string
	total := 0
	for _, b := range blocks {
		n := utf8.RuneCountInString(b)
		if len(batch) > 0 && total+n > maxChars {
			batches = append(batches, batch)
			batch, total = nil, 0
		}
		batch = append(batch, b)
		total += n
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	return batches
}

// JoinParagraphs is the inverse of SplitParagraphs.
func JoinParagraphs(paragraphs []string) string {
	return strings.Join(paragraphs, "\n\n")
}

// OutputName is the download name of a translated document. Word sources
// keep the .docx format; text and PDF sources produce .txt.
func OutputName(fileName, targetLang string) string {
	base := filepath.Base(filepath.FromSlash(fileName))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "document"
	}
	return fmt.Sprintf("%s_translated_%s%s", stem, targetLang, outputExt(base))
}
