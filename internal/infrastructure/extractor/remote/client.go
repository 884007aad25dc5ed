package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
	"github.com/kirillkom/property-vault/internal/infrastructure/resilience"
)

const recognizePath = "/v1/ocr"

// Client posts document bytes to an external OCR service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type recognizeRequest struct {
	DocumentID    string `json:"documentId"`
	FileName      string `json:"fileName"`
	MimeType      string `json:"mimeType"`
	ContentBase64 string `json:"contentBase64"`
}

type recognizeResponse struct {
	Text string `json:"text"`
}

func (c *Client) Extract(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("ocr service url is not configured")
	}
	request := recognizeRequest{
		DocumentID:    doc.ID,
		FileName:      doc.OriginalName,
		MimeType:      doc.MimeType,
		ContentBase64: base64.StdEncoding.EncodeToString(content),
	}

	var response recognizeResponse
	err := c.executor.Execute(ctx, "ocr.recognize", func(callCtx context.Context) error {
		response = recognizeResponse{}
		return c.postJSON(callCtx, recognizePath, request, &response, "recognize")
	}, classifyRemoteError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ocr recognize", err)
	}
	return strings.TrimSpace(response.Text), nil
}
