// Package capture produces the image and mask payloads a job needs from the
// host image editor. Captures run strictly in sequence because they may
// contend for the editor's document focus.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"genbridge/pkg/types"
)

// Editor is the host editor surface the adapter consumes. All payloads are
// base64-encoded PNG. Implementations live outside the orchestrator (UXP
// plugin, test fakes, the CLI file editor below).
type Editor interface {
	HasActiveDocument() bool
	HasActiveSelection() bool
	SelectionMask(ctx context.Context) (string, error)
	SelectionBounds(ctx context.Context) (types.Bounds, error)
	DocumentImage(ctx context.Context) (string, error)
	LayerImage(ctx context.Context, layerID string) (string, error)
	LayerBounds(ctx context.Context, layerID string) (types.Bounds, error)
	LayerTransparencyMask(ctx context.Context, layerID string) (string, error)
	PlaceImageAsLayer(ctx context.Context, image, name string) error
}

// FileEditor is a minimal Editor backed by image files on disk, used by the
// CLI where no host editor exists. ImagePath doubles as the document image;
// layer ids are file paths.
type FileEditor struct {
	ImagePath string
	MaskPath  string
	// OutDir receives placed result layers as PNG files.
	OutDir string
}

func (f *FileEditor) HasActiveDocument() bool  { return f.ImagePath != "" }
func (f *FileEditor) HasActiveSelection() bool { return f.MaskPath != "" }

func (f *FileEditor) SelectionMask(ctx context.Context) (string, error) {
	return readBase64(f.MaskPath)
}

func (f *FileEditor) SelectionBounds(ctx context.Context) (types.Bounds, error) {
	return types.Bounds{}, nil
}

func (f *FileEditor) DocumentImage(ctx context.Context) (string, error) {
	return readBase64(f.ImagePath)
}

func (f *FileEditor) LayerImage(ctx context.Context, layerID string) (string, error) {
	return readBase64(layerID)
}

func (f *FileEditor) LayerBounds(ctx context.Context, layerID string) (types.Bounds, error) {
	return types.Bounds{}, nil
}

func (f *FileEditor) LayerTransparencyMask(ctx context.Context, layerID string) (string, error) {
	return readBase64(layerID)
}

func (f *FileEditor) PlaceImageAsLayer(ctx context.Context, image, name string) error {
	if f.OutDir == "" {
		return fmt.Errorf("no output directory configured")
	}
	raw, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return fmt.Errorf("decode image %q: %w", name, err)
	}
	return os.WriteFile(fmt.Sprintf("%s/%s.png", f.OutDir, name), raw, 0o644)
}

func readBase64(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no file configured")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
