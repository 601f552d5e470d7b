package types

// JobStatus is the lifecycle state reported by the bridge for one job.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobExecuting   JobStatus = "executing"
	JobFinished    JobStatus = "finished"
	JobError       JobStatus = "error"
	JobInterrupted JobStatus = "interrupted"
)

// Terminal reports whether polling may stop at this status.
func (s JobStatus) Terminal() bool {
	return s == JobFinished || s == JobError || s == JobInterrupted
}

// LoraRequest is an optional LoRA weight attached to a generation.
// Data is optional; if omitted the LoRA is treated as a reference-only name.
type LoraRequest struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
	Data     string  `json:"data,omitempty"`
}

// ControlRequest is an auxiliary conditioning image (edge/depth/pose map).
type ControlRequest struct {
	Mode     string    `json:"mode"`
	Image    string    `json:"image,omitempty"`
	Strength float64   `json:"strength"`
	Range    []float64 `json:"range,omitempty"`
}

// Bounds locates a region or layer on the canvas.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionRequest is a masked sub-area with its own prompt.
type RegionRequest struct {
	Positive string           `json:"positive"`
	Mask     string           `json:"mask"`
	Bounds   *Bounds          `json:"bounds,omitempty"`
	Control  []ControlRequest `json:"control,omitempty"`
	Loras    []LoraRequest    `json:"loras,omitempty"`
}

// GenerateRequest is the payload for POST /generate.
// Image, mask and strength are only present for refine/inpaint jobs.
type GenerateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	// Seed of the first image; -1 asks the backend for a fresh random seed.
	Seed      int64  `json:"seed"`
	Model     string `json:"model,omitempty"`
	BatchSize int    `json:"batch_size"`
	Sampler   string `json:"sampler"`
	Scheduler string `json:"scheduler"`
	// Base64 PNG of the refine/inpaint base image.
	Image string `json:"image,omitempty"`
	// Denoise strength in (0,1); omitted for pure text-to-image.
	Strength float64 `json:"strength,omitempty"`
	// Base64 PNG inpaint mask.
	Mask           string           `json:"mask,omitempty"`
	InpaintMode    string           `json:"inpaint_mode,omitempty"`
	InpaintFill    string           `json:"inpaint_fill,omitempty"`
	InpaintContext string           `json:"inpaint_context,omitempty"`
	InpaintPadding int              `json:"inpaint_padding,omitempty"`
	InpaintGrow    int              `json:"inpaint_grow,omitempty"`
	InpaintFeather int              `json:"inpaint_feather,omitempty"`
	Loras          []LoraRequest    `json:"loras,omitempty"`
	Control        []ControlRequest `json:"control,omitempty"`
	Regions        []RegionRequest  `json:"regions,omitempty"`
}

// GenerateResponse acknowledges a submitted job.
type GenerateResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// UpscaleRequest is the payload for POST /upscale. The optional refine pass
// runs tiled diffusion over the upscaled result.
type UpscaleRequest struct {
	Image          string        `json:"image"`
	Factor         float64       `json:"factor"`
	Model          string        `json:"model,omitempty"`
	Refine         bool          `json:"refine,omitempty"`
	Checkpoint     string        `json:"checkpoint,omitempty"`
	Prompt         string        `json:"prompt,omitempty"`
	NegativePrompt string        `json:"negative_prompt,omitempty"`
	Steps          int           `json:"steps,omitempty"`
	CFGScale       float64       `json:"cfg_scale,omitempty"`
	Sampler        string        `json:"sampler,omitempty"`
	Scheduler      string        `json:"scheduler,omitempty"`
	Seed           int64         `json:"seed,omitempty"`
	Strength       float64       `json:"strength,omitempty"`
	TileOverlap    int           `json:"tile_overlap,omitempty"`
	Loras          []LoraRequest `json:"loras,omitempty"`
}

// CustomWorkflowRequest submits a raw workflow graph (local backend only).
type CustomWorkflowRequest struct {
	Workflow map[string]any `json:"workflow"`
}

// PaymentRequired is attached to a job error when the backend rejected the
// job over billing/quota. URL points at the billing page.
type PaymentRequired struct {
	URL     string `json:"url"`
	Credits *int   `json:"credits,omitempty"`
	Details string `json:"details,omitempty"`
}

// JobStatusResponse is returned by GET /jobs/{id}.
type JobStatusResponse struct {
	JobID           string           `json:"job_id"`
	Status          JobStatus        `json:"status"`
	Progress        float64          `json:"progress"`
	Error           string           `json:"error,omitempty"`
	PaymentRequired *PaymentRequired `json:"payment_required,omitempty"`
	ImageCount      int              `json:"image_count"`
}

// JobImagesResponse is returned by GET /jobs/{id}/images.
// Seeds carries the effective seed of each image at the same index.
type JobImagesResponse struct {
	JobID  string   `json:"job_id"`
	Images []string `json:"images"`
	Seeds  []int64  `json:"seeds"`
}

// ConnectionRequest selects and configures the compute backend.
type ConnectionRequest struct {
	Backend   string `json:"backend"`
	ComfyURL  string `json:"comfy_url,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`
}

// ConnectionStatus describes the bridge's link to its compute backend.
type ConnectionStatus struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	ComfyURL  string `json:"comfy_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Connected bool   `json:"connected"`
}

// StyleSummary is one entry of GET /styles. Sampler holds a preset name
// (e.g. "Default - DPM++ 2M") that clients resolve to sampler/scheduler.
type StyleSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Architecture   string   `json:"architecture"`
	Sampler        string   `json:"sampler"`
	CFGScale       float64  `json:"cfg_scale"`
	Steps          int      `json:"steps"`
	StylePrompt    string   `json:"style_prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	Checkpoints    []string `json:"checkpoints"`
}

// StylesResponse wraps the list of styles returned by GET /styles.
type StylesResponse struct {
	Styles []StyleSummary `json:"styles"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
