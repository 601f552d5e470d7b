package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"genbridge/internal/gen"
	"genbridge/pkg/types"
)

// fakeEditor records call order and can fail individual captures.
type fakeEditor struct {
	document  bool
	selection bool
	calls     []string
	failLayer map[string]bool
}

func (f *fakeEditor) HasActiveDocument() bool  { return f.document }
func (f *fakeEditor) HasActiveSelection() bool { return f.selection }

func (f *fakeEditor) SelectionMask(ctx context.Context) (string, error) {
	f.calls = append(f.calls, "selection")
	return "mask-data", nil
}

func (f *fakeEditor) SelectionBounds(ctx context.Context) (types.Bounds, error) {
	return types.Bounds{}, nil
}

func (f *fakeEditor) DocumentImage(ctx context.Context) (string, error) {
	f.calls = append(f.calls, "document")
	return "doc-data", nil
}

func (f *fakeEditor) LayerImage(ctx context.Context, layerID string) (string, error) {
	f.calls = append(f.calls, "layer:"+layerID)
	if f.failLayer[layerID] {
		return "", errors.New("layer gone")
	}
	return "img:" + layerID, nil
}

func (f *fakeEditor) LayerBounds(ctx context.Context, layerID string) (types.Bounds, error) {
	return types.Bounds{}, nil
}

func (f *fakeEditor) LayerTransparencyMask(ctx context.Context, layerID string) (string, error) {
	f.calls = append(f.calls, "region:"+layerID)
	if f.failLayer[layerID] {
		return "", errors.New("layer gone")
	}
	return "mask:" + layerID, nil
}

func (f *fakeEditor) PlaceImageAsLayer(ctx context.Context, image, name string) error { return nil }

func snapWith(mod func(*gen.Config)) *gen.Snapshot {
	cfg := gen.Default()
	if mod != nil {
		mod(&cfg)
	}
	return cfg.Snapshot()
}

func TestCaptureOrderIsDeterministic(t *testing.T) {
	ed := &fakeEditor{document: true, selection: true}
	snap := snapWith(func(c *gen.Config) {
		c.InpaintMode = gen.InpaintFill
		c.Control = []gen.ControlLayer{{Name: "pose", Mode: "pose", LayerID: "L1", Enabled: true}}
		c.Regions = []gen.Region{{Prompt: "sky", LayerID: "L2", Visible: true}}
	})

	in, err := Run(context.Background(), ed, snap, zerolog.Nop())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	want := []string{"selection", "document", "layer:L1", "region:L2"}
	if len(ed.calls) != len(want) {
		t.Fatalf("calls %v, want %v", ed.calls, want)
	}
	for i := range want {
		if ed.calls[i] != want[i] {
			t.Fatalf("call %d = %s, want %s", i, ed.calls[i], want[i])
		}
	}
	if in.Mask != "mask-data" || in.Image != "doc-data" {
		t.Fatalf("unexpected inputs: %+v", in)
	}
}

func TestInpaintWithoutSelectionIsRefused(t *testing.T) {
	ed := &fakeEditor{document: true, selection: false}
	snap := snapWith(func(c *gen.Config) { c.InpaintMode = gen.InpaintFill })

	_, err := Run(context.Background(), ed, snap, zerolog.Nop())
	if !IsNoSelection(err) {
		t.Fatalf("expected no-selection error, got %v", err)
	}
	if err.Error() != "no active selection found for inpaint" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if len(ed.calls) != 0 {
		t.Fatalf("no capture should have run, got %v", ed.calls)
	}
}

func TestStrength100WithoutSelectionCapturesNothing(t *testing.T) {
	ed := &fakeEditor{document: true}
	in, err := Run(context.Background(), ed, snapWith(nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if in.Image != "" || in.Mask != "" {
		t.Fatalf("expected empty inputs, got %+v", in)
	}
}

func TestRefineModeCapturesDocument(t *testing.T) {
	ed := &fakeEditor{document: true}
	snap := snapWith(func(c *gen.Config) { c.Strength = 60 })
	in, err := Run(context.Background(), ed, snap, zerolog.Nop())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if in.Image != "doc-data" {
		t.Fatalf("document image not captured")
	}
}

func TestControlLayerFailureAbortsJob(t *testing.T) {
	ed := &fakeEditor{document: true, failLayer: map[string]bool{"L1": true}}
	snap := snapWith(func(c *gen.Config) {
		c.Control = []gen.ControlLayer{{Name: "edges", Mode: "canny", LayerID: "L1", Enabled: true}}
	})
	_, err := Run(context.Background(), ed, snap, zerolog.Nop())
	if !IsControlLayer(err) {
		t.Fatalf("expected control layer error, got %v", err)
	}
	if got := err.Error(); got != "failed to process control layer 'edges': layer gone" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestRegionFailureIsSkipped(t *testing.T) {
	ed := &fakeEditor{document: true, failLayer: map[string]bool{"L2": true}}
	snap := snapWith(func(c *gen.Config) {
		c.Regions = []gen.Region{
			{Prompt: "sky", LayerID: "L2", Visible: true},
			{Prompt: "sea", LayerID: "L3", Visible: true},
		}
	})
	in, err := Run(context.Background(), ed, snap, zerolog.Nop())
	if err != nil {
		t.Fatalf("region failure must not abort: %v", err)
	}
	if len(in.Regions) != 1 || in.Regions[0].Positive != "sea" {
		t.Fatalf("expected one surviving region, got %+v", in.Regions)
	}
}

func TestDisabledAndCachedEntries(t *testing.T) {
	ed := &fakeEditor{document: true}
	snap := snapWith(func(c *gen.Config) {
		c.Control = []gen.ControlLayer{
			{Name: "off", Mode: "pose", LayerID: "L1", Enabled: false},
			{Name: "literal", Mode: "depth", Image: "cached-img", Strength: 0.5, RangeEnd: 0.8, Enabled: true},
		}
		c.Regions = []gen.Region{{Prompt: "sky", Mask: "cached-mask", Visible: true}}
	})
	in, err := Run(context.Background(), ed, snap, zerolog.Nop())
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if len(ed.calls) != 0 {
		t.Fatalf("cached payloads must not hit the editor, got %v", ed.calls)
	}
	if len(in.Controls) != 1 || in.Controls[0].Image != "cached-img" {
		t.Fatalf("unexpected controls: %+v", in.Controls)
	}
	if in.Controls[0].Range[1] != 0.8 {
		t.Fatalf("range not carried: %+v", in.Controls[0].Range)
	}
	if len(in.Regions) != 1 || in.Regions[0].Mask != "cached-mask" {
		t.Fatalf("unexpected regions: %+v", in.Regions)
	}
}
