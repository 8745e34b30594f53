package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) ExtractText(ctx context.Context, file models.UploadedFile) (string, error) {
	return s.text, s.err
}

func TestUTF8Extractor(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		expected string
	}{
		{"plain text", []byte("Motor M1: 5.5 kW"), "Motor M1: 5.5 kW"},
		{"pdf header", []byte("%PDF-1.7\n..."), ""},
		{"invalid utf8", []byte{0xff, 0xfe, 0xfd}, ""},
		{"nul bytes", []byte("abc\x00def"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := UTF8Extractor{}.ExtractText(context.Background(), models.UploadedFile{Name: "f", Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.4")))
	assert.True(t, IsPDF([]byte("\n %PDF-1.4")))
	assert.False(t, IsPDF([]byte("PDF-1.4")))
}

func TestChain(t *testing.T) {
	file := models.UploadedFile{Name: "spec.pdf"}

	t.Run("first non-empty wins", func(t *testing.T) {
		chain := Chain{stubExtractor{}, stubExtractor{text: "second"}, stubExtractor{text: "third"}}
		text, err := chain.ExtractText(context.Background(), file)
		require.NoError(t, err)
		assert.Equal(t, "second", text)
	})

	t.Run("errors are skipped when a later strategy succeeds", func(t *testing.T) {
		chain := Chain{stubExtractor{err: errors.New("boom")}, stubExtractor{text: "ok"}}
		text, err := chain.ExtractText(context.Background(), file)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	})

	t.Run("all failing joins errors", func(t *testing.T) {
		first := errors.New("first")
		chain := Chain{stubExtractor{err: first}, stubExtractor{err: errors.New("second")}}
		_, err := chain.ExtractText(context.Background(), file)
		require.Error(t, err)
		assert.ErrorIs(t, err, first)
	})

	t.Run("nothing handles the file", func(t *testing.T) {
		text, err := Chain{stubExtractor{}}.ExtractText(context.Background(), file)
		require.NoError(t, err)
		assert.Empty(t, text)
	})
}

func TestHTTPExtractor(t *testing.T) {
	t.Run("posts multipart file", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/extract", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			f, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			assert.Equal(t, "manual.pdf", header.Filename)
			assert.Equal(t, "%PDF-1.7 data", string(body))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"text": "Pump P-101 rated 15 kW", "strategy": "pdfplumber"})
		}))
		defer server.Close()

		extractor := NewHTTPExtractor(server.URL+"/", 5*time.Second)
		text, err := extractor.ExtractText(context.Background(), models.UploadedFile{
			Name:    "manual.pdf",
			Content: []byte("%PDF-1.7 data"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Pump P-101 rated 15 kW", text)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unsupported format", http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		extractor := NewHTTPExtractor(server.URL, 5*time.Second)
		_, err := extractor.ExtractText(context.Background(), models.UploadedFile{Name: "x.bin", Content: []byte{1, 2}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 422")
	})
}
