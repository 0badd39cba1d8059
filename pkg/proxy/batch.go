package proxy

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/echonote-ai/echonote/pkg/stt"
)

// handleBatch accepts raw audio on POST /listen, spools it to a temp file
// whose extension follows the content type, and dispatches to the selected
// vendor's batch adapter. The bytes are forwarded untranscoded.
func (s *Server) handleBatch(c *gin.Context) {
	provider, err := s.cfg.ResolveProvider(c.Query("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_provider", "detail": err.Error()})
		return
	}

	apiKey, err := s.cfg.apiKey(provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider_not_configured", "detail": err.Error()})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read_body_failed", "detail": err.Error()})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "missing_audio_data",
			"detail": "Request body is empty",
		})
		return
	}

	adapter, ok := stt.KindForProvider(provider).Batch()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "batch_unsupported",
			"detail": fmt.Sprintf("%s does not support batch transcription", provider),
		})
		return
	}

	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	params := stt.ParamsFromQuery(c.Request.URL.Query())

	s.logger.Info("batch transcription request",
		"provider", provider, "content_type", contentType, "body_bytes", len(body))

	tempFile, err := writeTempAudio(body, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temp_file_failed", "detail": err.Error()})
		return
	}
	defer os.Remove(tempFile)

	response, err := adapter.TranscribeFile(c.Request.Context(), s.http, s.cfg.baseURL(provider), apiKey, params, tempFile)
	s.metrics.RecordBatch(c.Request.Context(), provider, err == nil)
	if err != nil {
		s.logger.Error("batch transcription failed", "provider", provider, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription_failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

func writeTempAudio(body []byte, contentType string) (string, error) {
	ext := stt.ExtensionForContentType(contentType)
	f, err := os.CreateTemp("", "batch_audio_*."+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
