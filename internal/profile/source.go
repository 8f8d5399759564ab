package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LoadError reports a profile file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading profile %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ResumeTextKey holds the extracted text when the profile comes from a PDF.
const ResumeTextKey = "resume_text"

// LoadFile reads a profile document from path. JSON files must contain an
// object; PDF files are reduced to {"resume_text": "..."}.
func LoadFile(path string) (Document, error) {
	var (
		doc Document
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		doc, err = loadPDF(path)
	} else {
		doc, err = loadJSON(path)
	}
	if err != nil {
		return Document{}, &LoadError{Path: path, Err: err}
	}
	return doc, nil
}

func loadJSON(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return ParseDocument(data)
}

func loadPDF(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("extracting pdf text: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return Document{}, fmt.Errorf("reading pdf text: %w", err)
	}
	if strings.TrimSpace(string(text)) == "" {
		return Document{}, errors.New("pdf contains no extractable text")
	}

	data, err := json.Marshal(map[string]string{ResumeTextKey: strings.TrimSpace(string(text))})
	if err != nil {
		return Document{}, err
	}
	return ParseDocument(data)
}
