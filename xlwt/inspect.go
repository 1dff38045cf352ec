package xlwt

import (
	"bytes"
	"io"
	"os"
	"strings"
)

// FileFormatDescriptions provides descriptions of the file types InspectFormat
// can report.
var FileFormatDescriptions = map[string]string{
	"xls": "Excel xls",
	"zip": "ZIP container (xlsx, ods or other)",
	"":    "Unknown file type",
}

// ZIP_SIGNATURE is the magic cookie for ZIP files.
var ZIP_SIGNATURE = []byte("PK\x03\x04")

// PEEK_SIZE is the number of bytes needed to recognise a file signature.
const PEEK_SIZE = 8

// InspectFormat returns "xls" for a compound document, "zip" for a ZIP
// archive and "" for anything else.
func InspectFormat(content []byte) string {
	switch {
	case bytes.HasPrefix(content, XLS_SIGNATURE):
		return "xls"
	case bytes.HasPrefix(content, ZIP_SIGNATURE):
		return "zip"
	}
	return ""
}

// InspectFile reads the first bytes of the file at path and reports its
// format like InspectFormat. A leading ~ is expanded to the home directory.
func InspectFile(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = strings.Replace(path, "~", home, 1)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	peek := make([]byte, PEEK_SIZE)
	n, err := io.ReadFull(f, peek)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return InspectFormat(peek[:n]), nil
}
