package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LLMClient define la interfaz para generar respuestas con un LLM.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageDescriber extrae texto o una descripcion de una imagen.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, imageDataURL, prompt string) (string, error)
}

// HTTPClient implementa LLMClient, ImageDescriber y AssistantProvider contra
// una API compatible con OpenAI. Se construye una sola vez y se inyecta.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

var (
	_ LLMClient         = (*HTTPClient)(nil)
	_ ImageDescriber    = (*HTTPClient)(nil)
	_ AssistantProvider = (*HTTPClient)(nil)
)

// NewHTTPClient construye un cliente HTTP apuntando a la API del proveedor.
func NewHTTPClient(baseURL, apiKey, model string, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

func (c *HTTPClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: RoleUser, Content: prompt},
		},
	})
}

// DescribeImage envia la imagen como data URL junto al prompt en un solo mensaje.
func (c *HTTPClient) DescribeImage(ctx context.Context, imageDataURL, prompt string) (string, error) {
	return c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: RoleUser,
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL}},
				},
			},
		},
		MaxTokens: 500,
	})
}

func (c *HTTPClient) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	var cr chatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/completions", reqBody, &cr); err != nil {
		return "", err
	}

	if cr.Error != nil {
		return "", fmt.Errorf("%w: llm api error: %s", ErrRemoteUnavailable, cr.Error.Message)
	}

	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: llm empty response", ErrRemoteUnavailable)
	}

	return cr.Choices[0].Message.Content, nil
}

func (c *HTTPClient) CreateThread(ctx context.Context) (string, error) {
	var out threadObject
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: thread without id", ErrRemoteUnavailable)
	}
	return out.ID, nil
}

func (c *HTTPClient) CreateMessage(ctx context.Context, threadID, role, content string) error {
	body := messageRequest{Role: role, Content: content}
	return c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", body, nil)
}

func (c *HTTPClient) CreateRun(ctx context.Context, threadID, assistantID string) (string, error) {
	var out runObject
	body := runRequest{AssistantID: assistantID}
	if err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: run without id", ErrRemoteUnavailable)
	}
	return out.ID, nil
}

func (c *HTTPClient) GetRun(ctx context.Context, threadID, runID string) (RunStatus, error) {
	var out runObject
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return RunStatus{}, err
	}
	status := RunStatus{ID: out.ID, State: RunState(out.Status)}
	if out.LastError != nil {
		status.LastError = out.LastError.Message
	}
	return status, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var out messageList
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc&limit=20"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	messages := make([]ThreadMessage, 0, len(out.Data))
	for _, m := range out.Data {
		msg := ThreadMessage{ID: m.ID, Role: m.Role}
		for _, part := range m.Content {
			if part.Type == "text" && part.Text != nil {
				msg.Texts = append(msg.Texts, part.Text.Value)
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do request: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrRemoteUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("llm error status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return fmt.Errorf("%w: llm http error: status=%d", ErrRemoteUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// Content es string o []contentPart segun el tipo de mensaje.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type threadObject struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
}

type runObject struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageList struct {
	Data []struct {
		ID      string `json:"id"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text,omitempty"`
		} `json:"content"`
	} `json:"data"`
}
