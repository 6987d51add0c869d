package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrStorageNotConfigured = errors.New("storage uploader not configured")
	ErrUploadFailed         = errors.New("upload failed")
)

// Uploader 去中心化存储上传能力：上传任意字节或 JSON，返回内容地址 URI。
// 上传后的内容按地址寻址，不可变。
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	UploadJSON(ctx context.Context, v interface{}) (string, error)
}

var UploaderClient Uploader // 进程级上传器，InitStorage 中赋值

// gatewayUploader 通过 HTTP 上传网关（如 Irys gateway）上传内容。
// 网关返回 {"id": "<content-id>"}，内容地址为 <gateway_url>/<id>。
type gatewayUploader struct {
	gatewayURL string
	uploadURL  string
	token      string
	httpClient *http.Client
}

// InitStorage initializes the storage uploader from config.
// It reads storage.gateway_url (required), storage.upload_url
// (defaults to <gateway_url>/tx) and storage.token (optional bearer token).
func InitStorage() error {
	gatewayURL := viper.GetString("storage.gateway_url")
	if gatewayURL == "" {
		return errors.New("storage.gateway_url is empty in config")
	}
	gatewayURL = strings.TrimRight(gatewayURL, "/")

	uploadURL := viper.GetString("storage.upload_url")
	if uploadURL == "" {
		uploadURL = gatewayURL + "/tx"
	}

	UploaderClient = &gatewayUploader{
		gatewayURL: gatewayURL,
		uploadURL:  uploadURL,
		token:      viper.GetString("storage.token"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	return nil
}

func (u *gatewayUploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: gateway returned %d", ErrUploadFailed, resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: bad gateway response: %v", ErrUploadFailed, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: gateway response missing id", ErrUploadFailed)
	}

	return u.gatewayURL + "/" + out.ID, nil
}

func (u *gatewayUploader) UploadJSON(ctx context.Context, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return u.Upload(ctx, data, "application/json")
}
