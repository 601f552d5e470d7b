package comfy

import (
	"strconv"

	"genbridge/pkg/types"
)

// node is one entry of a ComfyUI prompt graph.
type node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

const defaultCheckpoint = "v1-5-pruned-emaonly.safetensors"

// BuildWorkflow translates a generate request into a ComfyUI prompt graph.
// Text-to-image by default; when the request carries a base image the latent
// is encoded from it and the denoise matches the requested strength, and a
// mask turns that into inpainting. LoRAs chain off the checkpoint loader.
func BuildWorkflow(req *types.GenerateRequest, seed int64) map[string]node {
	ckpt := req.Model
	if ckpt == "" {
		ckpt = defaultCheckpoint
	}

	wf := map[string]node{
		"1": {ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{
			"ckpt_name": ckpt,
		}},
	}

	// LoRA chain: each loader takes the previous model/clip outputs.
	model := []any{"1", 0}
	clip := []any{"1", 1}
	for i, lora := range req.Loras {
		id := strconv.Itoa(100 + i)
		wf[id] = node{ClassType: "LoraLoader", Inputs: map[string]any{
			"lora_name":      lora.Name,
			"strength_model": lora.Strength,
			"strength_clip":  lora.Strength,
			"model":          model,
			"clip":           clip,
		}}
		model = []any{id, 0}
		clip = []any{id, 1}
	}

	wf["2"] = node{ClassType: "CLIPTextEncode", Inputs: map[string]any{
		"text": req.Prompt,
		"clip": clip,
	}}
	wf["3"] = node{ClassType: "CLIPTextEncode", Inputs: map[string]any{
		"text": req.NegativePrompt,
		"clip": clip,
	}}

	denoise := 1.0
	var latent []any
	if req.Image != "" {
		wf["8"] = node{ClassType: "ETN_LoadImageBase64", Inputs: map[string]any{
			"image": req.Image,
		}}
		wf["9"] = node{ClassType: "VAEEncode", Inputs: map[string]any{
			"pixels": []any{"8", 0},
			"vae":    []any{"1", 2},
		}}
		latent = []any{"9", 0}
		if req.Strength > 0 {
			denoise = req.Strength
		}
		if req.Mask != "" {
			wf["10"] = node{ClassType: "ETN_LoadMaskBase64", Inputs: map[string]any{
				"mask": req.Mask,
			}}
			wf["11"] = node{ClassType: "SetLatentNoiseMask", Inputs: map[string]any{
				"samples": latent,
				"mask":    []any{"10", 0},
			}}
			latent = []any{"11", 0}
		}
	} else {
		wf["4"] = node{ClassType: "EmptyLatentImage", Inputs: map[string]any{
			"width":      req.Width,
			"height":     req.Height,
			"batch_size": req.BatchSize,
		}}
		latent = []any{"4", 0}
	}

	wf["5"] = node{ClassType: "KSampler", Inputs: map[string]any{
		"seed":         seed,
		"steps":        req.Steps,
		"cfg":          req.CFGScale,
		"sampler_name": req.Sampler,
		"scheduler":    req.Scheduler,
		"denoise":      denoise,
		"model":        model,
		"positive":     []any{"2", 0},
		"negative":     []any{"3", 0},
		"latent_image": latent,
	}}
	wf["6"] = node{ClassType: "VAEDecode", Inputs: map[string]any{
		"samples": []any{"5", 0},
		"vae":     []any{"1", 2},
	}}
	wf["7"] = node{ClassType: "SaveImage", Inputs: map[string]any{
		"filename_prefix": "genbridge",
		"images":          []any{"6", 0},
	}}
	return wf
}

const defaultUpscaleModel = "4x_NMKD-Superscale-SP_178000_G.pth"

// BuildUpscaleWorkflow upscales with a dedicated model, rescales to the
// requested factor, and optionally runs a low-denoise refine pass over the
// result to recover detail.
func BuildUpscaleWorkflow(req *types.UpscaleRequest, seed int64) map[string]node {
	model := req.Model
	if model == "" {
		model = defaultUpscaleModel
	}
	factor := req.Factor
	if factor <= 0 {
		factor = 2
	}

	wf := map[string]node{
		"1": {ClassType: "ETN_LoadImageBase64", Inputs: map[string]any{
			"image": req.Image,
		}},
		"2": {ClassType: "UpscaleModelLoader", Inputs: map[string]any{
			"model_name": model,
		}},
		"3": {ClassType: "ImageUpscaleWithModel", Inputs: map[string]any{
			"upscale_model": []any{"2", 0},
			"image":         []any{"1", 0},
		}},
		// Upscale models have a fixed native factor; rescale to the exact
		// factor the request asked for.
		"4": {ClassType: "ImageScaleBy", Inputs: map[string]any{
			"upscale_method": "lanczos",
			"scale_by":       factor,
			"image":          []any{"3", 0},
		}},
	}
	pixels := []any{"4", 0}

	if req.Refine {
		ckpt := req.Checkpoint
		if ckpt == "" {
			ckpt = defaultCheckpoint
		}
		strength := req.Strength
		if strength <= 0 {
			strength = 0.4
		}
		steps := req.Steps
		if steps <= 0 {
			steps = 20
		}
		cfg := req.CFGScale
		if cfg <= 0 {
			cfg = 7
		}
		sampler := req.Sampler
		if sampler == "" {
			sampler = "euler"
		}
		scheduler := req.Scheduler
		if scheduler == "" {
			scheduler = "normal"
		}
		wf["5"] = node{ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{
			"ckpt_name": ckpt,
		}}
		wf["6"] = node{ClassType: "CLIPTextEncode", Inputs: map[string]any{
			"text": req.Prompt,
			"clip": []any{"5", 1},
		}}
		wf["7"] = node{ClassType: "CLIPTextEncode", Inputs: map[string]any{
			"text": req.NegativePrompt,
			"clip": []any{"5", 1},
		}}
		wf["8"] = node{ClassType: "VAEEncode", Inputs: map[string]any{
			"pixels": pixels,
			"vae":    []any{"5", 2},
		}}
		wf["9"] = node{ClassType: "KSampler", Inputs: map[string]any{
			"seed":         seed,
			"steps":        steps,
			"cfg":          cfg,
			"sampler_name": sampler,
			"scheduler":    scheduler,
			"denoise":      strength,
			"model":        []any{"5", 0},
			"positive":     []any{"6", 0},
			"negative":     []any{"7", 0},
			"latent_image": []any{"8", 0},
		}}
		wf["10"] = node{ClassType: "VAEDecode", Inputs: map[string]any{
			"samples": []any{"9", 0},
			"vae":     []any{"5", 2},
		}}
		pixels = []any{"10", 0}
	}

	wf["11"] = node{ClassType: "SaveImage", Inputs: map[string]any{
		"filename_prefix": "genbridge_upscale",
		"images":          pixels,
	}}
	return wf
}
