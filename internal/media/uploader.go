package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Uploader pushes image bytes to the external host and returns the hosted
// URL. An upload failure aborts the whole send; a message must never be
// partially sent.
type Uploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// HostUploader talks to an imgbb-style host: base64 payload POSTed as a form
// field, API key in a query parameter, hosted URL in the JSON response.
type HostUploader struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHostUploader(endpoint, apiKey string) *HostUploader {
	return &HostUploader{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (u *HostUploader) Upload(ctx context.Context, data []byte) (string, error) {
	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(data))

	endpoint := u.endpoint
	if u.apiKey != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "key=" + url.QueryEscape(u.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload image: host returned %s", resp.Status)
	}

	var body struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if body.Data.URL == "" {
		return "", fmt.Errorf("upload image: host returned no URL")
	}
	return body.Data.URL, nil
}
