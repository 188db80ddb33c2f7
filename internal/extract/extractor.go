package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"doc-chat/internal/domain"
	"doc-chat/internal/llm"
)

const (
	// ImageTextPrompt pide la transcripcion del texto visible en la imagen.
	ImageTextPrompt = "Extract all readable text from this image. If there is no text, describe the image in detail."
	// GraphPrompt se usa para el analisis explicito de graficos.
	GraphPrompt = "Describe this graph in detail, reconfirm details and make sure you descript all the values, for each category/row/Column, make extra care on the bar's colours"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyContent    = errors.New("no text could be extracted")
)

// Result es el texto extraido junto con el tipo detectado.
type Result struct {
	Type string
	MIME string
	Text string
}

// Extractor convierte el contenido subido en texto utilizable como referencia.
type Extractor struct {
	vision llm.ImageDescriber
}

func New(vision llm.ImageDescriber) *Extractor {
	return &Extractor{vision: vision}
}

// Detect identifica el tipo por contenido, sin confiar en la extension.
func Detect(data []byte) (fileType string, mime string, err error) {
	m := mimetype.Detect(data)
	mime = m.String()
	switch {
	case m.Is("application/pdf"):
		return domain.FileTypePDF, mime, nil
	case strings.HasPrefix(mime, "image/"):
		return domain.FileTypeImage, mime, nil
	}
	for p := m; p != nil; p = p.Parent() {
		if p.Is("text/plain") {
			return domain.FileTypeText, mime, nil
		}
	}
	return "", mime, fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyContent
	}
	fileType, mime, err := Detect(data)
	if err != nil {
		return Result{}, err
	}

	res := Result{Type: fileType, MIME: mime}
	switch fileType {
	case domain.FileTypePDF:
		res.Text, err = pdfText(data)
	case domain.FileTypeImage:
		res.Text, err = e.imageText(ctx, data, mime, ImageTextPrompt)
	case domain.FileTypeText:
		if !utf8.Valid(data) {
			return Result{}, fmt.Errorf("%w: text is not utf-8", ErrUnsupportedType)
		}
		res.Text = string(data)
	}
	if err != nil {
		return Result{}, err
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		return Result{}, ErrEmptyContent
	}
	return res, nil
}

func (e *Extractor) imageText(ctx context.Context, data []byte, mime, prompt string) (string, error) {
	if e.vision == nil {
		return "", fmt.Errorf("%w: image extraction disabled", ErrUnsupportedType)
	}
	text, err := e.vision.DescribeImage(ctx, DataURL(mime, data), prompt)
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	return text, nil
}

// DataURL codifica los bytes como data URL base64.
func DataURL(mime string, data []byte) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// pdfText recupera el texto plano de todas las paginas. El parser entra en
// panic con ciertos PDFs corruptos.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return buf.String(), nil
}
