package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/numanijaz119/Audio-to-text/internal/models"
)

// Provider turns a stored audio file into text. Implementations may block
// for a long time; callers bound them with the context deadline.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, language models.Language) (string, error)
}

// WhisperProvider calls the OpenAI audio transcription endpoint.
type WhisperProvider struct {
	Client  *http.Client
	APIKey  string
	BaseURL string
	Model   string
}

func NewWhisperProvider() *WhisperProvider {
	return &WhisperProvider{
		// No client timeout; the per-job context carries the deadline.
		Client:  &http.Client{},
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: "https://api.openai.com/v1",
		Model:   "whisper-1",
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

func languageCode(language models.Language) string {
	switch language {
	case models.LanguageEnglish:
		return "en"
	case models.LanguageHindi:
		return "hi"
	default:
		return "" // auto detect
	}
}

func (p *WhisperProvider) Transcribe(ctx context.Context, audioPath string, language models.Language) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", p.Model); err != nil {
		return "", err
	}
	if code := languageCode(language); code != "" {
		if err := mw.WriteField("language", code); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper http %d: %s", resp.StatusCode, string(b))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", fmt.Errorf("failed to parse whisper response: %v", err)
	}
	return wr.Text, nil
}
