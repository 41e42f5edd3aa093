package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/testutil/testpdf"
)

func TestValidatePDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "pdf header", data: []byte("%PDF-1.7\n..."), want: true},
		{name: "too short", data: []byte("%PDF"), want: false},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n"), want: false},
		{name: "empty", data: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePDF(tt.data))
		})
	}
}

func TestInspect(t *testing.T) {
	data := testpdf.Build(
		testpdf.Letter(testpdf.Text(72, 700, 12, "Hello")+testpdf.Text(72, 680, 12, "brave new world")),
		testpdf.Letter(""),
		testpdf.Letter(testpdf.Text(72, 700, 12, "Goodbye")),
	)

	got, err := Inspect(data)
	require.NoError(t, err)

	assert.Equal(t, 3, got.PageCount)
	require.Len(t, got.Pages, 3)
	assert.Contains(t, got.Pages[0], "Hello")
	assert.Contains(t, got.Pages[0], "world")
	assert.Empty(t, got.Pages[1])
	assert.Contains(t, got.Pages[2], "Goodbye")
	assert.GreaterOrEqual(t, got.WordCount, 3)
}

func TestInspectInvalid(t *testing.T) {
	_, err := Inspect([]byte("definitely not a pdf"))
	require.Error(t, err)
}

func TestInspectFileMissing(t *testing.T) {
	_, err := InspectFile(t.TempDir() + "/nope.pdf")
	require.Error(t, err)
}
