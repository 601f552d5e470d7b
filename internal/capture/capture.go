package capture

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"genbridge/internal/gen"
	"genbridge/pkg/types"
)

// Inputs holds everything captured from the editor for one job.
type Inputs struct {
	// Image is the document snapshot for refine/inpaint, empty otherwise.
	Image string
	// Mask is the selection mask, empty when no selection applies.
	Mask     string
	Controls []types.ControlRequest
	Regions  []types.RegionRequest
}

type noSelectionError struct{}

func (noSelectionError) Error() string { return "no active selection found for inpaint" }

// IsNoSelection reports whether err is the missing-selection precondition
// failure. The job is refused before any backend request is made.
func IsNoSelection(err error) bool {
	_, ok := err.(noSelectionError)
	return ok
}

type controlLayerError struct {
	name string
	err  error
}

func (e controlLayerError) Error() string {
	return fmt.Sprintf("failed to process control layer '%s': %v", e.name, e.err)
}

func (e controlLayerError) Unwrap() error { return e.err }

// IsControlLayer reports whether err is a control-layer capture failure.
func IsControlLayer(err error) bool {
	_, ok := err.(controlLayerError)
	return ok
}

// Run captures all inputs the snapshot needs, strictly in the order
// selection → document → control layers → regions. Capture side effects in
// the host editor must never race, so nothing here runs concurrently.
//
// A control-layer failure aborts the whole job (control layers are
// structural conditioning); a region whose mask cannot be captured is
// logged and skipped (regions are additive refinements).
func Run(ctx context.Context, ed Editor, snap *gen.Snapshot, log zerolog.Logger) (Inputs, error) {
	var in Inputs

	if snap.InpaintMode != gen.InpaintAutomatic && !ed.HasActiveSelection() {
		return in, noSelectionError{}
	}
	if ed.HasActiveSelection() {
		mask, err := ed.SelectionMask(ctx)
		if err != nil {
			return in, fmt.Errorf("capture selection mask: %w", err)
		}
		in.Mask = mask
	}

	if snap.RefineMode() || in.Mask != "" {
		if !ed.HasActiveDocument() {
			return in, fmt.Errorf("no active document")
		}
		img, err := ed.DocumentImage(ctx)
		if err != nil {
			return in, fmt.Errorf("capture document image: %w", err)
		}
		in.Image = img
	}

	for _, layer := range snap.Control {
		if !layer.Enabled {
			continue
		}
		image := layer.Image
		if image == "" {
			img, err := ed.LayerImage(ctx, layer.LayerID)
			if err != nil {
				return in, controlLayerError{name: layer.Name, err: err}
			}
			image = img
		}
		in.Controls = append(in.Controls, types.ControlRequest{
			Mode:     layer.Mode,
			Image:    image,
			Strength: layer.Strength,
			Range:    []float64{layer.RangeStart, layer.RangeEnd},
		})
	}

	for _, region := range snap.Regions {
		if !region.Visible {
			continue
		}
		mask := region.Mask
		if mask == "" {
			m, err := ed.LayerTransparencyMask(ctx, region.LayerID)
			if err != nil {
				log.Warn().Str("layer", region.LayerID).Err(err).
					Msg("skipping region without capturable mask")
				continue
			}
			mask = m
		}
		bounds := region.Bounds
		in.Regions = append(in.Regions, types.RegionRequest{
			Positive: region.Prompt,
			Mask:     mask,
			Bounds:   &bounds,
		})
	}

	return in, nil
}
