package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	pinataAPI     = "https://api.pinata.cloud"
	pinataGateway = "https://gateway.pinata.cloud/ipfs/"
)

// PinataExpress pins content to IPFS through Pinata.
type PinataExpress struct {
	jwt     string
	baseURL string
	gateway string
	client  *http.Client
}

// NewPinataExpress creates the pinning skill
func NewPinataExpress(jwt string) *PinataExpress {
	return &PinataExpress{
		jwt:     jwt,
		baseURL: pinataAPI,
		gateway: pinataGateway,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// WithBaseURL points the skill at a different API host (tests)
func (p *PinataExpress) WithBaseURL(url string) *PinataExpress {
	p.baseURL = url
	return p
}

func (p *PinataExpress) Slug() string     { return "pinata-express" }
func (p *PinataExpress) Category() string { return "storage" }

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Execute pins either input["content"] (raw text, pinned as a file
// named input["filename"]) or input["json"] (pinned as JSON).
func (p *PinataExpress) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	if jsonContent, ok := input["json"]; ok {
		return p.pinJSON(ctx, jsonContent)
	}

	content, err := requireString(input, "content")
	if err != nil {
		return nil, err
	}
	filename := optString(input, "filename", "bazaar-upload.txt")
	return p.pinFile(ctx, filename, []byte(content))
}

func (p *PinataExpress) pinFile(ctx context.Context, filename string, content []byte) (map[string]any, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pinning/pinFileToIPFS", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	pin, err := p.doPin(req)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"ipfs_hash":   pin.IpfsHash,
		"gateway_url": p.gateway + pin.IpfsHash,
		"pin_size":    pin.PinSize,
		"filename":    filename,
	}, nil
}

func (p *PinataExpress) pinJSON(ctx context.Context, content any) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{"pinataContent": content})
	if err != nil {
		return nil, fmt.Errorf("%w: json", ErrMissingInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)
	req.Header.Set("Content-Type", "application/json")

	pin, err := p.doPin(req)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"ipfs_hash":   pin.IpfsHash,
		"gateway_url": p.gateway + pin.IpfsHash,
		"pin_size":    pin.PinSize,
	}, nil
}

func (p *PinataExpress) doPin(req *http.Request) (*pinResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: pinata returned %d: %s", ErrUpstreamFailed, resp.StatusCode, body)
	}

	var pin pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	return &pin, nil
}
