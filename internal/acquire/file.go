package acquire

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

// FileReader extracts text from uploaded files. Relative paths resolve
// against the upload root.
type FileReader struct {
	root string
}

func NewFileReader(root string) *FileReader {
	return &FileReader{root: root}
}

func (r *FileReader) resolve(path string) string {
	if r.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.root, path)
}

func (r *FileReader) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrAcquisition, err)
	}
	full := r.resolve(path)
	ext := strings.ToLower(filepath.Ext(full))

	var (
		text string
		err  error
	)
	switch ext {
	case ".txt", ".md", ".markdown", ".csv":
		var data []byte
		data, err = os.ReadFile(full)
		text = string(data)
	case ".html", ".htm":
		var data []byte
		if data, err = os.ReadFile(full); err == nil {
			text, err = extractHTML(data, []string{"body"})
		}
	case ".pdf":
		text, err = readPDF(full)
	case ".docx":
		text, err = readDOCX(full)
	default:
		return "", &models.UnsupportedFormatError{Ext: ext}
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", models.ErrAcquisition, path, err)
	}
	return text, nil
}

// readPDF concatenates the plain text of every page, one page per block.
func readPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func readDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return docxText(rc)
	}
	return "", errors.New("word/document.xml not found")
}

// docxText keeps w:t runs and turns w:p, w:br and w:tab into whitespace.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b bytes.Buffer
	inText := false
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
			case "br":
				b.WriteByte('\n')
			case "tab":
				b.WriteByte('\t')
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
