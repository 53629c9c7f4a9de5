package clients

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/config"
	"datalabel-backend/internal/metrics"
)

// IPFSURIPrefix scheme used for task artifact references
const IPFSURIPrefix = "ipfs://"

// IPFSClient IPFS HTTP API client
type IPFSClient struct {
	apiURL     string
	authHeader string
	httpClient *http.Client
}

// NewIPFSClient create IPFS client
func NewIPFSClient(cfg config.IPFSConfig) *IPFSClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "http://127.0.0.1:5001"
	}

	c := &IPFSClient{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.ProjectID != "" && cfg.ProjectSecret != "" {
		c.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.ProjectID+":"+cfg.ProjectSecret))
	}
	return c
}

// Put adds and pins data, returning ipfs://<cid>
func (c *IPFSClient) Put(ctx context.Context, name string, data []byte) (string, error) {
	cid, err := c.add(ctx, name, data)
	if err != nil {
		metrics.ArtifactUploads.WithLabelValues("ipfs", "error").Inc()
		log.Printf("❌ IPFS upload failed: name=%s, error=%v", name, err)
		return "", apperrors.StoreUnavailable(err, "artifact store upload failed")
	}
	metrics.ArtifactUploads.WithLabelValues("ipfs", "success").Inc()
	return IPFSURIPrefix + cid, nil
}

// PutJSON stores v as JSON
func (c *IPFSClient) PutJSON(ctx context.Context, name string, v interface{}) (string, error) {
	data, err := marshalArtifact(v)
	if err != nil {
		return "", apperrors.Internal(err, "encode artifact")
	}
	return c.Put(ctx, name, data)
}

func (c *IPFSClient) add(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/api/v0/add?pin=true&cid-version=1", c.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		if len(msg) == 0 {
			return "", fmt.Errorf("ipfs add failed: %s", resp.Status)
		}
		return "", fmt.Errorf("ipfs add failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	// the add endpoint streams one JSON object per line, the last one is the root
	var lastHash string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var entry struct {
			Hash string `json:"Hash"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err == nil && entry.Hash != "" {
			lastHash = entry.Hash
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if lastHash == "" {
		return "", fmt.Errorf("ipfs add returned empty hash")
	}
	return lastHash, nil
}

// Cat reads an artifact back by cid or ipfs:// reference
func (c *IPFSClient) Cat(ctx context.Context, ref string) ([]byte, error) {
	cid := strings.TrimPrefix(strings.TrimSpace(ref), IPFSURIPrefix)
	if cid == "" {
		return nil, apperrors.Validation(nil, "missing artifact reference")
	}
	reqURL := fmt.Sprintf("%s/api/v0/cat?arg=%s", c.apiURL, url.QueryEscape(cid))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err, "artifact store read failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.StoreUnavailable(fmt.Errorf("ipfs cat failed: %s", resp.Status), "artifact store read failed")
	}
	return io.ReadAll(resp.Body)
}

// GatewayURL maps an ipfs:// reference onto an HTTP gateway
func GatewayURL(gateway, ref string) string {
	if !strings.HasPrefix(ref, IPFSURIPrefix) {
		return ref
	}
	if gateway == "" {
		gateway = "https://ipfs.io"
	}
	return strings.TrimRight(gateway, "/") + "/ipfs/" + strings.TrimPrefix(ref, IPFSURIPrefix)
}
