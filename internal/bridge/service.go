// Package bridge exposes the generation backend over HTTP: job submission,
// polling, image retrieval, cancellation, connection management and styles.
package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"genbridge/internal/comfy"
	"genbridge/pkg/types"
)

// Service defines the methods required by the HTTP layer.
type Service interface {
	Connection() types.ConnectionStatus
	Connect(ctx context.Context, req types.ConnectionRequest) (types.ConnectionStatus, error)
	Generate(ctx context.Context, req *types.GenerateRequest) (string, error)
	Upscale(ctx context.Context, req *types.UpscaleRequest) (string, error)
	Custom(ctx context.Context, workflow map[string]any) (string, error)
	JobStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error)
	JobImages(ctx context.Context, jobID string) (*types.JobImagesResponse, error)
	Cancel(ctx context.Context, jobID string) error
	Styles() []types.StyleSummary
}

// Core is the production Service: a ComfyUI manager plus the style store.
type Core struct {
	comfy    *comfy.Manager
	styles   *StyleStore
	comfyURL string
	log      zerolog.Logger
}

// NewCore wires the service together. comfyURL is the default instance used
// when a connect request does not name one.
func NewCore(mgr *comfy.Manager, styles *StyleStore, comfyURL string, log zerolog.Logger) *Core {
	return &Core{comfy: mgr, styles: styles, comfyURL: comfyURL, log: log}
}

func (c *Core) Connection() types.ConnectionStatus {
	return c.comfy.Status()
}

// Connect (re)connects the bridge to a compute backend. Only the local
// ComfyUI backend is supported; cloud backends are a different deployment.
func (c *Core) Connect(ctx context.Context, req types.ConnectionRequest) (types.ConnectionStatus, error) {
	switch req.Backend {
	case "", "comfy", "local":
	default:
		return types.ConnectionStatus{}, fmt.Errorf("unsupported backend %q", req.Backend)
	}
	url := req.ComfyURL
	if url == "" {
		url = c.comfyURL
	}
	if err := c.comfy.Connect(ctx, url); err != nil {
		st := c.comfy.Status()
		st.Error = err.Error()
		return st, err
	}
	return c.comfy.Status(), nil
}

func (c *Core) Generate(ctx context.Context, req *types.GenerateRequest) (string, error) {
	return c.comfy.Generate(ctx, req)
}

func (c *Core) Upscale(ctx context.Context, req *types.UpscaleRequest) (string, error) {
	return c.comfy.Upscale(ctx, req)
}

func (c *Core) Custom(ctx context.Context, workflow map[string]any) (string, error) {
	return c.comfy.Custom(ctx, workflow)
}

func (c *Core) JobStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error) {
	return c.comfy.JobStatus(ctx, jobID)
}

func (c *Core) JobImages(ctx context.Context, jobID string) (*types.JobImagesResponse, error) {
	return c.comfy.JobImages(ctx, jobID)
}

func (c *Core) Cancel(ctx context.Context, jobID string) error {
	return c.comfy.Cancel(ctx, jobID)
}

func (c *Core) Styles() []types.StyleSummary {
	return c.styles.List()
}
