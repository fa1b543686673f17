package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/openpapers/papersync/internal/errors"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided. Uploads carry file bytes, so
	// this is more generous than a plain JSON API would need.
	httpClientTimeout = 120 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024
)

// Client talks to the document store REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents session tokens from
// leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client for the given base URL. If httpClient
// is nil, a client with a 120-second timeout and same-host redirect
// policy is created.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	// Ensure valid UTF-8 and replace control characters.
	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// do sends a request with the session token attached and classifies the
// response. Network failures and 429/5xx statuses wrap in
// TransientError; validation rejections come back as permanent errors.
func (c *Client) do(req *http.Request, token string, result any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("sending request to %s: %w", req.URL.Path, err)
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return &TransientError{Err: wrapped}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.classifyError(req, resp.StatusCode, respBody, token)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: decoding response from %s: %w", apperrors.ErrAPIResponse, req.URL.Path, err)
		}
	}

	return nil
}

// classifyError maps a non-2xx response to an error. Rejected auth maps
// to the credential sentinels; 429/5xx and "try again" messages wrap in
// TransientError so the retry layer picks them up.
func (c *Client) classifyError(req *http.Request, status int, respBody []byte, token string) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if token == "" {
			return fmt.Errorf("%w: API %s returned status %d", apperrors.ErrInvalidCredentials, req.URL.Path, status)
		}

		return fmt.Errorf("%w: API %s returned status %d", apperrors.ErrInvalidToken, req.URL.Path, status)
	}

	msg := sanitizeResponseBody(respBody)

	var apiErr APIError
	if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}

	err := fmt.Errorf("%w: %s (%d): %s", apperrors.ErrAPIRequest, req.URL.Path, status, msg)
	if isTransientStatus(status) || isTransientMessage(msg) {
		return &TransientError{Err: err}
	}

	return err
}

// postJSON sends a JSON POST request and decodes the response into result.
func (c *Client) postJSON(ctx context.Context, endpoint, token string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(req, token, result)
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// isTransientMessage checks whether an API error message suggests a
// temporary condition the server reported with a non-retryable status.
func isTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)

	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "try again") ||
		strings.Contains(lower, "temporarily unavailable")
}

// Signin authenticates with email and password, returning a session token.
func (c *Client) Signin(ctx context.Context, email, password, device string) (*SigninResponse, error) {
	req := SigninRequest{
		Email:    email,
		Password: password,
		Device:   device,
	}

	var resp SigninResponse
	if err := c.postJSON(ctx, "/auth/signin", "", req, &resp); err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	if resp.Token == "" {
		return nil, fmt.Errorf("signin response carried no token")
	}

	return &resp, nil
}

// VerifySession checks that a cached session token is still accepted.
func (c *Client) VerifySession(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/session", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	return c.do(req, token, nil)
}

// CreateFile uploads a document with its metadata as a multipart POST to
// /files. The metadata and thumbnail parts are omitted when empty.
func (c *Client) CreateFile(ctx context.Context, token, path, batchID string, content []byte, meta *FileMetadata, thumbnail []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", path)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}

	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}

	if err := mw.WriteField("path", path); err != nil {
		return fmt.Errorf("writing path field: %w", err)
	}

	if batchID != "" {
		if err := mw.WriteField("batchId", batchID); err != nil {
			return fmt.Errorf("writing batch field: %w", err)
		}
	}

	if meta != nil {
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}

		if err := mw.WriteField("metadata", string(metaJSON)); err != nil {
			return fmt.Errorf("writing metadata part: %w", err)
		}
	}

	if len(thumbnail) > 0 {
		tw, err := mw.CreateFormFile("thumbnail", "thumbnail.jpg")
		if err != nil {
			return fmt.Errorf("creating thumbnail part: %w", err)
		}

		if _, err := tw.Write(thumbnail); err != nil {
			return fmt.Errorf("writing thumbnail part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, token, nil)
}

// MoveFile relocates a file to a different folder.
func (c *Client) MoveFile(ctx context.Context, token, from, to string) error {
	return c.postJSON(ctx, "/files/move", token, MoveRequest{From: from, To: to}, nil)
}

// RenameFile renames a file within its folder.
func (c *Client) RenameFile(ctx context.Context, token, from, to string) error {
	return c.postJSON(ctx, "/files/rename", token, MoveRequest{From: from, To: to}, nil)
}

// DeleteFile removes a file from the document store.
func (c *Client) DeleteFile(ctx context.Context, token, path string) error {
	return c.delete(ctx, token, "/files/"+escapePath(path))
}

// CreateFolder creates a folder, optionally tagged with a batch ID so
// the store can associate it with the files that follow.
func (c *Client) CreateFolder(ctx context.Context, token, path, batchID string) error {
	return c.postJSON(ctx, "/folders", token, CreateFolderRequest{Path: path, BatchID: batchID}, nil)
}

// MoveFolder relocates a folder and its contents.
func (c *Client) MoveFolder(ctx context.Context, token, from, to string) error {
	return c.postJSON(ctx, "/folders/move", token, MoveRequest{From: from, To: to}, nil)
}

// DeleteFolder removes a folder and its contents.
func (c *Client) DeleteFolder(ctx context.Context, token, path string) error {
	return c.delete(ctx, token, "/folders/"+escapePath(path))
}

func (c *Client) delete(ctx context.Context, token, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	return c.do(req, token, nil)
}

// escapePath escapes each segment of a library-relative path so slashes
// survive as separators in the request URL.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}
