package genctl

import (
	"encoding/base64"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"genbridge/internal/capture"
	"genbridge/internal/history"
	"genbridge/internal/orchestrator"
	"genbridge/pkg/types"
)

func newUpscaleCmd(a *app) *cobra.Command {
	var req types.UpscaleRequest
	var imagePath, outDir string

	cmd := &cobra.Command{
		Use:   "upscale",
		Short: "Upscale an image file, optionally with a diffusion refine pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(imagePath)
			if err != nil {
				return err
			}
			req.Image = base64.StdEncoding.EncodeToString(raw)
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			o := orchestrator.New(orchestrator.Options{
				Backend:  a.client(),
				Editor:   &capture.FileEditor{OutDir: outDir},
				History:  history.NewRecorder(a.cfg.HistoryPath, a.log),
				Reporter: &consoleReporter{out: cmd.OutOrStdout(), in: cmd.InOrStdin()},
				Settings: orchestrator.Settings{PollInterval: a.cfg.PollInterval()},
				Logger:   a.log,
			})
			if err := o.Upscale(cmd.Context(), &req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "results written to %s\n", outDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Image file to upscale")
	cmd.Flags().Float64Var(&req.Factor, "factor", 2, "Upscale factor")
	cmd.Flags().StringVar(&req.Model, "model", "", "Upscale model name")
	cmd.Flags().BoolVar(&req.Refine, "refine", false, "Run a refine pass over the upscaled image")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Prompt for the refine pass")
	cmd.Flags().Float64Var(&req.Strength, "strength", 0.4, "Refine denoise strength")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory for result images")
	cmd.MarkFlagRequired("image")
	return cmd
}

func newStylesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the styles available on the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			styles, err := a.client().Styles(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSAMPLER\tSTEPS\tCFG")
			for _, s := range styles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g\n", s.ID, s.Name, s.Sampler, s.Steps, s.CFGScale)
			}
			return w.Flush()
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the bridge's health and backend connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("bridge unreachable at %s: %w", a.cfg.BridgeURL, err)
			}
			st, err := c.Connection(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bridge:  %s (ok)\n", a.cfg.BridgeURL)
			fmt.Fprintf(cmd.OutOrStdout(), "backend: %s, %s", st.Backend, st.Status)
			if st.ComfyURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", st.ComfyURL)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newConnectCmd(a *app) *cobra.Command {
	var comfyURL string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Ask the bridge to (re)connect to its compute backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client().Connect(cmd.Context(), types.ConnectionRequest{
				Backend:  "comfy",
				ComfyURL: comfyURL,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", st.Status, st.ComfyURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&comfyURL, "comfy-url", "", "ComfyUI base URL (empty for the bridge's default)")
	return cmd
}

func newCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job on the bridge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().CancelJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past generations from the local history log",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := history.NewRecorder(a.cfg.HistoryPath, a.log)
			groups, err := rec.List()
			if err != nil {
				return err
			}
			if limit > 0 && len(groups) > limit {
				groups = groups[len(groups)-limit:]
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tIMAGES\tSTRENGTH\tPROMPT")
			for _, g := range groups {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
					g.CreatedAt.Format("2006-01-02 15:04:05"), len(g.Images), g.Strength, g.Prompt)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Show at most this many entries (0 for all)")
	return cmd
}
