package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	replicateAPI    = "https://api.replicate.com/v1"
	defaultArtModel = "black-forest-labs/flux-schnell"
	proArtModel     = "black-forest-labs/flux-1.1-pro"
	artPollInterval = 2 * time.Second
)

// NeuralArtist generates images from text prompts via Replicate.
type NeuralArtist struct {
	slug    string
	token   string
	baseURL string
	model   string
	client  *http.Client
}

// NewNeuralArtist creates the image generation skill
func NewNeuralArtist(token string) *NeuralArtist {
	return &NeuralArtist{
		slug:    "neural-artist",
		token:   token,
		baseURL: replicateAPI,
		model:   defaultArtModel,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// NewNeuralArtistPro creates the premium variant on a slower, higher
// quality model.
func NewNeuralArtistPro(token string) *NeuralArtist {
	n := NewNeuralArtist(token)
	n.slug = "neural-artist-pro"
	n.model = proArtModel
	return n
}

// WithBaseURL points the skill at a different API host (tests)
func (n *NeuralArtist) WithBaseURL(url string) *NeuralArtist {
	n.baseURL = url
	return n
}

func (n *NeuralArtist) Slug() string     { return n.slug }
func (n *NeuralArtist) Category() string { return "creative" }

type replicatePrediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
}

// Execute generates an image for input["prompt"].
func (n *NeuralArtist) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	prompt, err := requireString(input, "prompt")
	if err != nil {
		return nil, err
	}
	aspect := optString(input, "aspect_ratio", "1:1")

	pred, err := n.createPrediction(ctx, prompt, aspect)
	if err != nil {
		return nil, err
	}

	pred, err = n.waitForPrediction(ctx, pred)
	if err != nil {
		return nil, err
	}

	if len(pred.Output) == 0 {
		return nil, fmt.Errorf("%w: prediction returned no output", ErrUpstreamFailed)
	}

	return map[string]any{
		"image_url":     pred.Output[0],
		"prompt":        prompt,
		"aspect_ratio":  aspect,
		"model":         n.model,
		"prediction_id": pred.ID,
	}, nil
}

func (n *NeuralArtist) createPrediction(ctx context.Context, prompt, aspect string) (*replicatePrediction, error) {
	body, err := json.Marshal(map[string]any{
		"input": map[string]any{
			"prompt":       prompt,
			"aspect_ratio": aspect,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s/predictions", n.baseURL, n.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: replicate returned %d", ErrUpstreamFailed, resp.StatusCode)
	}

	var pred replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	return &pred, nil
}

func (n *NeuralArtist) waitForPrediction(ctx context.Context, pred *replicatePrediction) (*replicatePrediction, error) {
	for {
		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return nil, fmt.Errorf("%w: prediction %s: %s", ErrUpstreamFailed, pred.Status, pred.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(artPollInterval):
		}

		next, err := n.getPrediction(ctx, pred.ID)
		if err != nil {
			return nil, err
		}
		pred = next
	}
}

func (n *NeuralArtist) getPrediction(ctx context.Context, id string) (*replicatePrediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: replicate returned %d", ErrUpstreamFailed, resp.StatusCode)
	}

	var pred replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	return &pred, nil
}
