package genctl

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"genbridge/internal/capture"
	"genbridge/internal/gen"
	"genbridge/internal/history"
	"genbridge/internal/orchestrator"
)

func newGenerateCmd(a *app) *cobra.Command {
	cfg := gen.Default()
	var imagePath, maskPath, outDir string
	var loras []string

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Run one generation job and write the results to disk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cfg.Prompt = args[0]
			}
			cfg.FixedSeed = cfg.Seed >= 0
			for _, spec := range loras {
				lw, err := parseLora(spec)
				if err != nil {
					return err
				}
				cfg.Loras = append(cfg.Loras, lw)
			}
			if cfg.Strength < 100 && imagePath == "" {
				return fmt.Errorf("--strength below 100 requires --image")
			}
			if maskPath != "" && imagePath == "" {
				return fmt.Errorf("--mask requires --image")
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			editor := &capture.FileEditor{ImagePath: imagePath, MaskPath: maskPath, OutDir: outDir}
			rec := history.NewRecorder(a.cfg.HistoryPath, a.log)

			o := orchestrator.New(orchestrator.Options{
				Backend:  a.client(),
				Editor:   editor,
				History:  rec,
				Reporter: &consoleReporter{out: cmd.OutOrStdout(), in: cmd.InOrStdin()},
				Settings: orchestrator.Settings{
					PollInterval:         a.cfg.PollInterval(),
					ResolutionMultiplier: a.cfg.Performance.ResolutionMultiplier,
				},
				Logger: a.log,
			})

			ctx := cmd.Context()
			if cfg.StyleID != "" {
				if err := o.RefreshStyles(ctx); err != nil {
					return err
				}
				if o.StyleByID(cfg.StyleID) == nil {
					return fmt.Errorf("unknown style %q", cfg.StyleID)
				}
				cfg.UseStyleDefaults = true
			}

			if err := o.Generate(ctx, cfg.Snapshot()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "results written to %s\n", outDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.NegativePrompt, "negative", "", "Negative prompt")
	cmd.Flags().IntVar(&cfg.Width, "width", cfg.Width, "Image width in pixels")
	cmd.Flags().IntVar(&cfg.Height, "height", cfg.Height, "Image height in pixels")
	cmd.Flags().IntVar(&cfg.Steps, "steps", cfg.Steps, "Sampler steps")
	cmd.Flags().Float64Var(&cfg.CFGScale, "cfg", cfg.CFGScale, "Classifier-free guidance scale")
	cmd.Flags().StringVar(&cfg.Sampler, "sampler", cfg.Sampler, "Sampler name")
	cmd.Flags().StringVar(&cfg.Scheduler, "scheduler", cfg.Scheduler, "Scheduler name")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", -1, "Fixed seed (-1 for random)")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Number of images per job")
	cmd.Flags().IntVar(&cfg.Strength, "strength", cfg.Strength, "Strength 1-100; below 100 refines --image")
	cmd.Flags().StringVar(&cfg.StyleID, "style", "", "Style id to apply (see 'genctl styles')")
	cmd.Flags().StringVar(&imagePath, "image", "", "Base image for refine or inpaint")
	cmd.Flags().StringVar(&maskPath, "mask", "", "Inpaint mask (requires --image)")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for result images")
	cmd.Flags().StringArrayVar(&loras, "lora", nil, "LoRA as name:strength, repeatable")
	return cmd
}

// parseLora parses "name:strength"; strength defaults to 1.0.
func parseLora(spec string) (gen.LoraWeight, error) {
	lw := gen.LoraWeight{Strength: 1.0, Enabled: true}
	name, strength, found := strings.Cut(spec, ":")
	if name == "" {
		return lw, fmt.Errorf("invalid lora %q, want name:strength", spec)
	}
	lw.Name = name
	if found {
		if _, err := fmt.Sscanf(strength, "%f", &lw.Strength); err != nil {
			return lw, fmt.Errorf("invalid lora strength %q: %w", strength, err)
		}
	}
	return lw, nil
}
