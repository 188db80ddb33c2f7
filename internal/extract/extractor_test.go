package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-chat/internal/domain"
	"doc-chat/internal/llm"
)

// 1x1 PNG transparente.
var tinyPNG, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"), domain.FileTypePDF},
		{"png", tinyPNG, domain.FileTypeImage},
		{"text", []byte("photosynthesis happens in chloroplasts"), domain.FileTypeText},
		{"csv", []byte("a,b,c\n1,2,3\n4,5,6\n"), domain.FileTypeText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, err := Detect(tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, _, err := Detect([]byte{0x50, 0x4b, 0x03, 0x04, 0x14, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestExtract_Text(t *testing.T) {
	e := New(nil)
	res, err := e.Extract(context.Background(), []byte("  chapter one\nplants  \n"))
	require.NoError(t, err)
	assert.Equal(t, domain.FileTypeText, res.Type)
	assert.Equal(t, "chapter one\nplants", res.Text)
}

func TestExtract_Empty(t *testing.T) {
	e := New(nil)
	_, err := e.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = e.Extract(context.Background(), []byte("   \n  "))
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestExtract_ImageUsesVision(t *testing.T) {
	vision := &llm.MockClient{Response: "A bar chart of sales"}
	e := New(vision)

	res, err := e.Extract(context.Background(), tinyPNG)
	require.NoError(t, err)
	assert.Equal(t, domain.FileTypeImage, res.Type)
	assert.Equal(t, "A bar chart of sales", res.Text)
	assert.True(t, strings.HasPrefix(vision.LastImage, "data:image/png;base64,"))
	assert.Equal(t, ImageTextPrompt, vision.LastPrompt)
}

func TestExtract_ImageErrors(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), tinyPNG)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	vision := &llm.MockClient{Err: llm.ErrRemoteUnavailable}
	_, err = New(vision).Extract(context.Background(), tinyPNG)
	assert.True(t, errors.Is(err, llm.ErrRemoteUnavailable))
}

func TestExtract_CorruptPDF(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), []byte("%PDF-1.4\nthis is not really a pdf"))
	assert.Error(t, err)
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:text/plain;base64,aGk=", DataURL("text/plain; charset=utf-8", []byte("hi")))
}
