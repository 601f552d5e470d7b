package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"genbridge/internal/capture"
	"genbridge/internal/gen"
	"genbridge/internal/history"
	"genbridge/pkg/types"
)

// runSnapshot drives one generation job through its whole lifecycle:
// capture → submit → poll → fetch → record. Each phase completes before the
// next begins; nothing here overlaps.
func (o *Orchestrator) runSnapshot(ctx context.Context, snap *gen.Snapshot, tok *CancelToken) error {
	in, err := capture.Run(ctx, o.editor, snap, o.log)
	if err != nil {
		return err
	}
	req := o.buildRequest(snap, in)
	jobID, err := o.backend.Generate(ctx, req)
	if err != nil {
		return err
	}
	o.setActiveJob(jobID)
	o.log.Info().Str("job_id", jobID).Int("batch", req.BatchSize).Msg("job submitted")
	return o.track(ctx, jobID, tok, func(images *types.JobImagesResponse) error {
		applied := o.place(ctx, jobID, images)
		return o.record(snap.Prompt, snap.NegativePrompt, snap.Strength, snap.StyleID, images, applied)
	})
}

// place inserts the finished images into the editor as result layers and
// reports which ones made it. A placement failure does not fail the job; the
// images are still in the history.
func (o *Orchestrator) place(ctx context.Context, jobID string, images *types.JobImagesResponse) []bool {
	applied := make([]bool, len(images.Images))
	if o.editor == nil {
		return applied
	}
	for i, img := range images.Images {
		name := fmt.Sprintf("%s-%d", jobID, i)
		if err := o.editor.PlaceImageAsLayer(ctx, img, name); err != nil {
			o.log.Warn().Str("layer", name).Err(err).Msg("failed to place result layer")
			continue
		}
		applied[i] = true
	}
	return applied
}

// buildRequest merges the snapshot with style-derived defaults and the
// captured inputs into the backend request.
func (o *Orchestrator) buildRequest(snap *gen.Snapshot, in capture.Inputs) *types.GenerateRequest {
	req := &types.GenerateRequest{
		Prompt:         snap.Prompt,
		NegativePrompt: snap.NegativePrompt,
		Width:          o.scaled(snap.Width),
		Height:         o.scaled(snap.Height),
		Steps:          snap.Steps,
		CFGScale:       snap.CFGScale,
		Seed:           -1,
		BatchSize:      snap.BatchSize,
		Sampler:        snap.Sampler,
		Scheduler:      snap.Scheduler,
		Control:        in.Controls,
		Regions:        in.Regions,
	}
	if snap.FixedSeed {
		req.Seed = snap.Seed
	}
	for _, l := range snap.Loras {
		if l.Enabled {
			req.Loras = append(req.Loras, types.LoraRequest{Name: l.Name, Strength: l.Strength})
		}
	}
	if snap.UseStyleDefaults {
		gen.ApplyStyle(req, o.StyleByID(snap.StyleID))
	}
	if snap.RefineMode() {
		req.Image = in.Image
		req.Strength = float64(snap.Strength) / 100
	}
	if in.Mask != "" {
		// Inpaint needs the base image even at full strength.
		req.Image = in.Image
		req.Mask = in.Mask
		req.InpaintMode = snap.InpaintMode
		req.InpaintFill = snap.InpaintFill
		req.InpaintContext = snap.InpaintContext
		req.InpaintPadding = snap.InpaintPadding
		req.InpaintGrow = snap.InpaintGrow
		req.InpaintFeather = snap.InpaintFeather
	}
	return req
}

// scaled applies the resolution multiplier, snapped to a multiple of 8 as
// the samplers require.
func (o *Orchestrator) scaled(v int) int {
	mult := o.settings.ResolutionMultiplier
	if mult == 1.0 {
		return v
	}
	scaled := int(math.Round(float64(v)*mult/8)) * 8
	if scaled < 8 {
		scaled = 8
	}
	return scaled
}

// track polls the job on a fixed interval until a terminal status or the
// cooperative cancel flag is observed. The flag is checked at the top of
// each iteration; an in-flight request is never preempted. Transport errors
// are fatal to the job and never retried.
func (o *Orchestrator) track(ctx context.Context, jobID string, tok *CancelToken, onFinished func(*types.JobImagesResponse) error) error {
	ticker := time.NewTicker(o.settings.PollInterval)
	defer ticker.Stop()
	for {
		if tok.Cancelled() {
			return interruptedError{}
		}
		st, err := o.backend.JobStatus(ctx, jobID)
		if err != nil {
			return err
		}
		switch st.Status {
		case types.JobQueued:
			o.reporter.Progress(jobID, 0, "queued")
		case types.JobExecuting:
			o.reporter.Progress(jobID, st.Progress, fmt.Sprintf("generating %d%%", int(st.Progress*100)))
		case types.JobFinished:
			o.reporter.Progress(jobID, 1, "finished")
			images, err := o.backend.JobImages(ctx, jobID)
			if err != nil {
				return err
			}
			if len(images.Images) == 0 {
				return jobFailedError{msg: "no images generated"}
			}
			return onFinished(images)
		case types.JobInterrupted:
			return interruptedError{}
		case types.JobError:
			msg := st.Error
			if msg == "" {
				msg = "generation failed"
			}
			if st.PaymentRequired != nil {
				if o.reporter.ConfirmPayment(*st.PaymentRequired) {
					o.log.Info().Str("url", st.PaymentRequired.URL).Msg("billing page accepted")
				}
			}
			return jobFailedError{msg: msg, payment: st.PaymentRequired}
		default:
			return fmt.Errorf("unknown job status %q", st.Status)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// record turns a finished job's images into exactly one history group.
func (o *Orchestrator) record(prompt, negative string, strength int, styleID string, images *types.JobImagesResponse, applied []bool) error {
	group := &history.Group{
		ID:             newID(),
		CreatedAt:      time.Now(),
		Prompt:         prompt,
		NegativePrompt: negative,
		Strength:       strength,
		StyleID:        styleID,
		Images:         make([]history.Image, 0, len(images.Images)),
	}
	for i, img := range images.Images {
		var seed int64
		if i < len(images.Seeds) {
			seed = images.Seeds[i]
		}
		entry := history.Image{Index: i, Image: img, Seed: seed}
		if i < len(applied) {
			entry.Applied = applied[i]
		}
		group.Images = append(group.Images, entry)
	}
	if o.history == nil {
		return nil
	}
	return o.history.Record(group)
}
