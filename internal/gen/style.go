package gen

import (
	"strings"

	"genbridge/pkg/types"
)

// SamplerPreset resolves a named preset to concrete sampler settings.
type SamplerPreset struct {
	Sampler   string
	Scheduler string
	CFG       float64
	Steps     int
}

// Preset names used by the built-in styles. Unknown names fall back to
// euler/normal, matching the bridge's resolve_sampler behavior.
var samplerPresets = map[string]SamplerPreset{
	"Default - DPM++ 2M":      {Sampler: "dpmpp_2m", Scheduler: "karras", CFG: 7.0, Steps: 20},
	"Default - DPM++ 2M SDE":  {Sampler: "dpmpp_2m_sde_gpu", Scheduler: "karras", CFG: 7.0, Steps: 20},
	"Default - Euler a":       {Sampler: "euler_ancestral", Scheduler: "normal", CFG: 7.0, Steps: 20},
	"Flux - Euler simple":     {Sampler: "euler", Scheduler: "simple", CFG: 1.0, Steps: 20},
	"Realtime - Hyper":        {Sampler: "euler", Scheduler: "sgm_uniform", CFG: 1.8, Steps: 6},
	"Realtime - LCM":          {Sampler: "lcm", Scheduler: "sgm_uniform", CFG: 1.5, Steps: 6},
	"Alternative - DDIM":      {Sampler: "ddim", Scheduler: "ddim_uniform", CFG: 7.0, Steps: 20},
	"Alternative - UniPC BH2": {Sampler: "uni_pc_bh2", Scheduler: "ddim_uniform", CFG: 7.0, Steps: 20},
}

// ResolveSampler maps a preset name to sampler settings.
func ResolveSampler(name string) SamplerPreset {
	if p, ok := samplerPresets[name]; ok {
		return p
	}
	return SamplerPreset{Sampler: "euler", Scheduler: "normal", CFG: 7.0, Steps: 20}
}

// MergePrompt wraps the user prompt with a style template. Templates embed
// the literal prompt at the "{prompt}" placeholder; templates without the
// placeholder are appended after the prompt.
func MergePrompt(prompt, template string) string {
	if template == "" {
		return prompt
	}
	if strings.Contains(template, "{prompt}") {
		return strings.ReplaceAll(template, "{prompt}", prompt)
	}
	if prompt == "" {
		return template
	}
	return prompt + ", " + template
}

// MergeNegative concatenates the user's negative prompt after the style's.
func MergeNegative(style, user string) string {
	switch {
	case style == "":
		return user
	case user == "":
		return style
	default:
		return style + ", " + user
	}
}

// ApplyStyle merges style-derived defaults into req: sampler, scheduler,
// steps, cfg and checkpoint come from the style, and the prompts are wrapped
// per the style templates. Called only when the snapshot opts into style
// defaults.
func ApplyStyle(req *types.GenerateRequest, style *types.StyleSummary) {
	if style == nil {
		return
	}
	preset := ResolveSampler(style.Sampler)
	req.Sampler = preset.Sampler
	req.Scheduler = preset.Scheduler
	if style.Steps > 0 {
		req.Steps = style.Steps
	}
	if style.CFGScale > 0 {
		req.CFGScale = style.CFGScale
	}
	if len(style.Checkpoints) > 0 {
		req.Model = style.Checkpoints[0]
	}
	req.Prompt = MergePrompt(req.Prompt, style.StylePrompt)
	req.NegativePrompt = MergeNegative(style.NegativePrompt, req.NegativePrompt)
}
