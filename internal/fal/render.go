package fal

import (
	"context"
	"fmt"

	"framecast/internal/video"
)

var videoModels = map[video.Mode]string{
	video.ModeImageToVideo:   "fal-ai/veo3.1/fast/image-to-video",
	video.ModeFirstLastFrame: "fal-ai/veo3.1/fast/first-last-frame-to-video",
}

type videoArguments struct {
	Prompt          string `json:"prompt"`
	ImageURL        string `json:"image_url,omitempty"`
	FirstFrameURL   string `json:"first_frame_url,omitempty"`
	LastFrameURL    string `json:"last_frame_url,omitempty"`
	Duration        string `json:"duration"`
	AspectRatio     string `json:"aspect_ratio"`
	Resolution      string `json:"resolution"`
	GenerateAudio   bool   `json:"generate_audio"`
	SafetyTolerance string `json:"safety_tolerance"`
}

type videoResult struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
}

// Render generates a clip and returns the provider's URL for it.
func (c *Client) Render(ctx context.Context, req video.RenderRequest) (string, error) {
	model, ok := videoModels[req.Mode]
	if !ok {
		return "", fmt.Errorf("render: unsupported mode %q", req.Mode)
	}
	first, err := dataURI(req.FirstFrame)
	if err != nil {
		return "", fmt.Errorf("render: first frame: %w", err)
	}

	args := videoArguments{
		Prompt:          req.Prompt,
		Duration:        req.Duration,
		AspectRatio:     "16:9",
		Resolution:      "720p",
		GenerateAudio:   false,
		SafetyTolerance: "6",
	}
	if req.Mode == video.ModeFirstLastFrame {
		last, err := dataURI(req.LastFrame)
		if err != nil {
			return "", fmt.Errorf("render: last frame: %w", err)
		}
		args.FirstFrameURL = first
		args.LastFrameURL = last
	} else {
		args.ImageURL = first
	}

	ctx, cancel := context.WithTimeout(ctx, c.videoTimeout)
	defer cancel()

	var res videoResult
	if err := c.run(ctx, model, args, &res); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	if res.Video.URL == "" {
		return "", fmt.Errorf("render: %s returned no video url", model)
	}
	return res.Video.URL, nil
}

var _ video.Renderer = (*Client)(nil)
