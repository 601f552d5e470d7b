package comfy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"genbridge/pkg/types"
)

func baseRequest() *types.GenerateRequest {
	return &types.GenerateRequest{
		Prompt:         "a lighthouse",
		NegativePrompt: "blurry",
		Width:          512,
		Height:         768,
		Steps:          20,
		CFGScale:       7,
		Seed:           42,
		BatchSize:      2,
		Sampler:        "euler",
		Scheduler:      "normal",
	}
}

func TestBuildWorkflowTxt2Img(t *testing.T) {
	wf := BuildWorkflow(baseRequest(), 42)

	latent := wf["4"]
	require.Equal(t, "EmptyLatentImage", latent.ClassType)
	require.Equal(t, 512, latent.Inputs["width"])
	require.Equal(t, 768, latent.Inputs["height"])
	require.Equal(t, 2, latent.Inputs["batch_size"])

	sampler := wf["5"]
	require.Equal(t, "KSampler", sampler.ClassType)
	require.Equal(t, int64(42), sampler.Inputs["seed"])
	require.Equal(t, 1.0, sampler.Inputs["denoise"])
	require.Equal(t, []any{"4", 0}, sampler.Inputs["latent_image"])

	_, hasLoad := wf["8"]
	require.False(t, hasLoad, "txt2img must not load a base image")
}

func TestBuildWorkflowImg2ImgUsesStrengthAsDenoise(t *testing.T) {
	req := baseRequest()
	req.Image = "aW1n"
	req.Strength = 0.6
	wf := BuildWorkflow(req, 42)

	require.Equal(t, "ETN_LoadImageBase64", wf["8"].ClassType)
	require.Equal(t, "VAEEncode", wf["9"].ClassType)
	sampler := wf["5"]
	require.Equal(t, 0.6, sampler.Inputs["denoise"])
	require.Equal(t, []any{"9", 0}, sampler.Inputs["latent_image"])
	_, hasEmpty := wf["4"]
	require.False(t, hasEmpty)
}

func TestBuildWorkflowInpaintMasksLatent(t *testing.T) {
	req := baseRequest()
	req.Image = "aW1n"
	req.Mask = "bWFzaw=="
	wf := BuildWorkflow(req, 42)

	require.Equal(t, "ETN_LoadMaskBase64", wf["10"].ClassType)
	require.Equal(t, "SetLatentNoiseMask", wf["11"].ClassType)
	require.Equal(t, []any{"11", 0}, wf["5"].Inputs["latent_image"])
}

func TestBuildWorkflowLoraChain(t *testing.T) {
	req := baseRequest()
	req.Loras = []types.LoraRequest{
		{Name: "detail.safetensors", Strength: 0.8},
		{Name: "paint.safetensors", Strength: 0.5},
	}
	wf := BuildWorkflow(req, 42)

	first := wf["100"]
	require.Equal(t, "LoraLoader", first.ClassType)
	require.Equal(t, []any{"1", 0}, first.Inputs["model"])

	second := wf["101"]
	require.Equal(t, []any{"100", 0}, second.Inputs["model"])

	// Sampler and text encoders hang off the end of the chain.
	require.Equal(t, []any{"101", 0}, wf["5"].Inputs["model"])
	require.Equal(t, []any{"101", 1}, wf["2"].Inputs["clip"])
}

func TestBuildWorkflowDefaultCheckpoint(t *testing.T) {
	wf := BuildWorkflow(baseRequest(), 1)
	require.Equal(t, defaultCheckpoint, wf["1"].Inputs["ckpt_name"])

	req := baseRequest()
	req.Model = "dreamshaper.safetensors"
	wf = BuildWorkflow(req, 1)
	require.Equal(t, "dreamshaper.safetensors", wf["1"].Inputs["ckpt_name"])
}

func TestBuildUpscaleWorkflowPlain(t *testing.T) {
	wf := BuildUpscaleWorkflow(&types.UpscaleRequest{Image: "aW1n", Factor: 2}, 7)

	require.Equal(t, "ImageUpscaleWithModel", wf["3"].ClassType)
	require.Equal(t, 2.0, wf["4"].Inputs["scale_by"])
	require.Equal(t, []any{"4", 0}, wf["11"].Inputs["images"])
	_, refined := wf["9"]
	require.False(t, refined)
}

func TestBuildUpscaleWorkflowRefinePass(t *testing.T) {
	wf := BuildUpscaleWorkflow(&types.UpscaleRequest{
		Image:  "aW1n",
		Factor: 2,
		Refine: true,
		Prompt: "crisp photo",
	}, 7)

	sampler := wf["9"]
	require.Equal(t, "KSampler", sampler.ClassType)
	require.Equal(t, 0.4, sampler.Inputs["denoise"])
	require.Equal(t, int64(7), sampler.Inputs["seed"])
	require.Equal(t, []any{"10", 0}, wf["11"].Inputs["images"])
}
