package voiceyou

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	uploadPath = "/api/upload"
	voicesPath = "/api/voices"
	healthPath = "/health"

	userAgent       = "VoiceYouSDK-Go/1.0"
	requestIDHeader = "X-Request-ID"

	uploadFallbackDetail = "Failed to upload audio"
	voicesFallbackDetail = "Failed to fetch voices"
)

// uploadResponse mirrors the 201 body of POST /api/upload.
type uploadResponse struct {
	Message    string `json:"message"`
	FileName   string `json:"file_name"`
	FileKey    string `json:"file_key"`
	FileSize   int64  `json:"file_size"`
	S3URL      string `json:"s3_url"`
	UploadedAt string `json:"uploaded_at"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string `json:"status"`
}

// APIClient talks to the recording backend. Requests are never retried.
type APIClient struct {
	baseURL string
	http    *resty.Client
	logger  *Logger
}

func NewAPIClient(cfg *Config) *APIClient {
	if cfg == nil {
		cfg = NewConfig()
	}
	baseURL := strings.TrimRight(cfg.APIURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	logger := GetGlobalLogger().WithComponent("APIClient")
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(baseURL).
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)
	for k, v := range cfg.Headers {
		client.SetHeader(k, v)
	}

	return &APIClient{
		baseURL: baseURL,
		http:    client,
		logger:  logger,
	}
}

func (ac *APIClient) BaseURL() string {
	return ac.baseURL
}

func (ac *APIClient) newRequest(ctx context.Context) (*resty.Request, string) {
	requestID := uuid.New().String()
	return ac.http.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, requestID), requestID
}

// do executes the request and maps failures onto the error taxonomy:
// no response is Unreachable, a non-2xx response is ServerRejected and a
// request that could not be built is ClientError.
func (ac *APIClient) do(req *resty.Request, method, path, requestID, fallback string) (*resty.Response, *VoiceError) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		ac.logger.LogRequest(method, path, requestID, 0, time.Since(start))
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Op == "parse" {
			return nil, NewClientError(err.Error())
		}
		return nil, NewUnreachableError(err).AddDetail("request_id", requestID)
	}
	ac.logger.LogRequest(method, path, requestID, resp.StatusCode(), time.Since(start))

	if !resp.IsSuccess() {
		return nil, NewServerRejectedError(extractDetail(resp.Body(), fallback), resp.StatusCode()).
			AddDetail("request_id", requestID)
	}
	return resp, nil
}

// extractDetail returns the server-supplied detail text verbatim, or fallback
// when the body carries none.
func extractDetail(body []byte, fallback string) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || len(er.Detail) == 0 {
		return fallback
	}
	var text string
	if err := json.Unmarshal(er.Detail, &text); err == nil {
		if text == "" {
			return fallback
		}
		return text
	}
	if string(er.Detail) == "null" {
		return fallback
	}
	return string(er.Detail)
}

// UploadAudio sends data as the multipart field "file".
func (ac *APIClient) UploadAudio(ctx context.Context, data []byte, fileName, mimeType string) Result[*UploadResult] {
	if len(data) == 0 {
		return Err[*UploadResult](NewClientError("audio data cannot be empty"))
	}
	if fileName == "" {
		return Err[*UploadResult](NewClientError("file name cannot be empty"))
	}
	if mimeType == "" {
		mimeType = WAVMimeType
	}

	req, requestID := ac.newRequest(ctx)
	req.SetMultipartField("file", fileName, mimeType, bytes.NewReader(data))

	resp, vErr := ac.do(req, http.MethodPost, uploadPath, requestID, uploadFallbackDetail)
	if vErr != nil {
		return Err[*UploadResult](vErr)
	}

	var body uploadResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.S3URL == "" {
		return Err[*UploadResult](NewServerRejectedError("malformed upload response", resp.StatusCode()))
	}

	name := body.FileName
	if name == "" {
		name = fileName
	}
	return Ok(&UploadResult{
		RemoteURL:      body.S3URL,
		RemoteFileName: name,
		FileKey:        body.FileKey,
		FileSize:       body.FileSize,
	})
}

// ListVoices returns the remote listing in server order.
func (ac *APIClient) ListVoices(ctx context.Context) Result[[]VoiceEntry] {
	req, requestID := ac.newRequest(ctx)
	req.SetHeader("Accept", "application/json")

	resp, vErr := ac.do(req, http.MethodGet, voicesPath, requestID, voicesFallbackDetail)
	if vErr != nil {
		return Err[[]VoiceEntry](vErr)
	}

	var entries []VoiceEntry
	if err := json.Unmarshal(resp.Body(), &entries); err != nil {
		return Err[[]VoiceEntry](NewServerRejectedError("malformed voices response", resp.StatusCode()))
	}
	if entries == nil {
		entries = []VoiceEntry{}
	}
	return Ok(entries)
}

func (ac *APIClient) HealthCheck(ctx context.Context) Result[*HealthStatus] {
	req, requestID := ac.newRequest(ctx)

	resp, vErr := ac.do(req, http.MethodGet, healthPath, requestID, "Health check failed")
	if vErr != nil {
		return Err[*HealthStatus](vErr)
	}

	var status HealthStatus
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return Err[*HealthStatus](NewServerRejectedError("malformed health response", resp.StatusCode()))
	}
	return Ok(&status)
}

// DeleteVoice removes fileName from the remote store.
func (ac *APIClient) DeleteVoice(ctx context.Context, fileName string) Result[bool] {
	if fileName == "" {
		return Err[bool](NewClientError("file name cannot be empty"))
	}
	req, requestID := ac.newRequest(ctx)
	req.SetPathParam("name", fileName)

	if _, vErr := ac.do(req, http.MethodDelete, voicesPath+"/{name}", requestID, "Failed to delete voice"); vErr != nil {
		return Err[bool](vErr)
	}
	return Ok(true)
}

// Fetch downloads an absolute URL, typically a catalog entry.
func (ac *APIClient) Fetch(ctx context.Context, rawURL string) Result[[]byte] {
	if rawURL == "" {
		return Err[[]byte](NewClientError("url cannot be empty"))
	}
	req, requestID := ac.newRequest(ctx)

	resp, vErr := ac.do(req, http.MethodGet, rawURL, requestID, "Failed to fetch recording")
	if vErr != nil {
		return Err[[]byte](vErr)
	}
	return Ok(resp.Body())
}
