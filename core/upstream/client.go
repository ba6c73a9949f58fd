package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperterse/codemode/core/logger"
	apperrors "github.com/hyperterse/codemode/core/shared/errors"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 32 << 20

// Client performs authenticated reads against the remote API.
type Client struct {
	baseURL    string
	apiName    string
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient gets a default with timeout.
func NewClient(baseURL, apiName string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiName:    apiName,
		httpClient: httpClient,
	}
}

// APIName returns the display name used in error messages.
func (c *Client) APIName() string {
	return c.apiName
}

// Get issues GET {base}{path} with the bearer credential and decodes the
// envelope. A failed envelope is returned as an upstream error.
func (c *Client) Get(ctx context.Context, path, credential string) (*Success, error) {
	log := logger.New("upstream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeInternalError, "failed to build upstream request", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeUpstream,
			fmt.Sprintf("%s API request failed: %v", c.apiName, err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeUpstream,
			fmt.Sprintf("%s API response could not be read", c.apiName), err)
	}
	log.Debugf("GET %s -> %d (%d bytes)", path, resp.StatusCode, len(body))

	envelope, err := DecodeEnvelope(c.apiName, resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}
	if err := envelope.Err(c.apiName); err != nil {
		return nil, err
	}
	return envelope.Success, nil
}
