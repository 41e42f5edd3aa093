package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatch(t *testing.T) {
	body := `{"ops": [
		{"type":"add_text","page":0,"x":10,"y":20,"text":"Hello","size":18,"color":"#ff0000"},
		{"type":"add_image","page":"1","x":"50","y":50.5,"w":200,"h":120,"dataUrl":"data:image/png;base64,AAAA"},
		{"type":"redact","page":0,"x":100,"y":100,"w":150,"h":40}
	]}`

	batch, err := ParseBatch([]byte(body))
	require.NoError(t, err)
	require.Len(t, batch.Ops, 3)

	text := batch.Ops[0]
	assert.Equal(t, KindAddText, text.Kind)
	assert.Equal(t, 0, text.Page)
	assert.Equal(t, 10.0, text.X)
	assert.Equal(t, "Hello", text.Text)
	assert.Equal(t, 18.0, text.FontSize)
	assert.Equal(t, "#ff0000", text.Color)

	img := batch.Ops[1]
	assert.Equal(t, 1, img.Page)
	assert.Equal(t, 50.0, img.X)
	assert.Equal(t, 50.5, img.Y)
	assert.True(t, img.HasImage)
	assert.Equal(t, "data:image/png;base64,AAAA", img.ImageData)

	redact := batch.Ops[2]
	assert.Equal(t, KindRedact, redact.Kind)
	assert.Equal(t, 150.0, redact.Width)
	assert.Equal(t, 40.0, redact.Height)
}

func TestParseBatchDefaults(t *testing.T) {
	batch, err := ParseBatch([]byte(`{"ops":[{"type":"add_text"},{"type":"add_image"},{"type":"redact"},{"type":"other"}]}`))
	require.NoError(t, err)
	require.Len(t, batch.Ops, 4)

	assert.Equal(t, 0, batch.Ops[0].Page)
	assert.Equal(t, DefaultFontSize, batch.Ops[0].FontSize)
	assert.Equal(t, DefaultColor, batch.Ops[0].Color)
	assert.Equal(t, "", batch.Ops[0].Text)

	assert.Equal(t, 200.0, batch.Ops[1].Width)
	assert.Equal(t, 150.0, batch.Ops[1].Height)
	assert.False(t, batch.Ops[1].HasImage)

	assert.Equal(t, 10.0, batch.Ops[2].Width)
	assert.Equal(t, 10.0, batch.Ops[2].Height)

	assert.Equal(t, "other", batch.Ops[3].Kind)
}

func TestParseBatchLenientFields(t *testing.T) {
	batch, err := ParseBatch([]byte(`{"ops":[{"type":"add_text","page":1.9,"text":42,"color":7,"dataUrl":123}]}`))
	require.NoError(t, err)
	op := batch.Ops[0]

	assert.Equal(t, 1, op.Page)
	assert.Equal(t, "42", op.Text)
	assert.Equal(t, "7", op.Color)
	assert.False(t, op.HasImage, "non-string dataUrl is not an image payload")
}

func TestParseBatchEmpty(t *testing.T) {
	for _, body := range []string{`{}`, `{"ops":[]}`, `{"ops":null}`} {
		batch, err := ParseBatch([]byte(body))
		require.NoError(t, err, body)
		assert.Empty(t, batch.Ops)
	}
}

func TestParseBatchInvalid(t *testing.T) {
	bodies := []string{
		``,
		`not json`,
		`[]`,
		`{"ops": {"type":"redact"}}`,
		`{"ops": "redact"}`,
		`{"ops": [1, 2]}`,
		`{"ops": [{"type":"redact","x":"left"}]}`,
		`{"ops": [{"type":"redact","page":[0]}]}`,
	}
	for _, body := range bodies {
		_, err := ParseBatch([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidRequest, "body %q", body)
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "job_not_found", ErrorKind(ErrJobNotFound))
	assert.Equal(t, "invalid_request", ErrorKind(ErrInvalidRequest))
	assert.Equal(t, "payload_decode_error", ErrorKind(ErrPayloadDecode))
	assert.Equal(t, "document_io_error", ErrorKind(ErrDocumentIO))
	assert.Equal(t, "job_busy", ErrorKind(ErrJobBusy))
	assert.Equal(t, "", ErrorKind(nil))
}
