package fal

import (
	"context"
	"errors"
	"fmt"
)

const (
	editModel     = "fal-ai/nano-banana-pro/edit"
	maxImageBytes = 50 * 1024 * 1024
)

type editArguments struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls"`
	AspectRatio  string   `json:"aspect_ratio"`
	Resolution   string   `json:"resolution"`
	OutputFormat string   `json:"output_format"`
	NumImages    int      `json:"num_images"`
}

type editResult struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// EditImage applies a text instruction to an image and returns the edited PNG.
func (c *Client) EditImage(ctx context.Context, prompt string, image []byte) ([]byte, error) {
	uri, err := dataURI(image)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.editTimeout)
	defer cancel()

	var res editResult
	err = c.run(ctx, editModel, editArguments{
		Prompt:       prompt,
		ImageURLs:    []string{uri},
		AspectRatio:  "16:9",
		Resolution:   "1K",
		OutputFormat: "png",
		NumImages:    1,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	if len(res.Images) == 0 || res.Images[0].URL == "" {
		return nil, errors.New("edit image: no image in result")
	}

	data, err := c.fetch(ctx, res.Images[0].URL, maxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	c.logger.Debug("edited image downloaded", "bytes", len(data))
	return data, nil
}
