package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nghyane/msgproxy/internal/bootstrap"
	"github.com/nghyane/msgproxy/internal/registry"
	"github.com/nghyane/msgproxy/internal/runtime/executor"
	"github.com/spf13/cobra"
)

var modelsResolve []string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List backend models and test model resolution",
	Long: `Fetch the backend model catalog and print it.

With --resolve, print which catalog model each requested name maps to and
which resolution step matched:

  msgproxy models --resolve claude-3-5-sonnet-20241022 --resolve claude-opus-4-1`,
	RunE: func(c *cobra.Command, _ []string) error {
		result, err := bootstrap.Bootstrap(cfgFile)
		if err != nil {
			return err
		}
		cfg := result.Config
		client, err := executor.NewClient(cfg)
		if err != nil {
			return err
		}

		models := registry.NewModelRegistry(staticModels(cfg))
		ctx, cancel := context.WithTimeout(c.Context(), time.Minute)
		defer cancel()
		catalog, err := registry.NewCatalogLoader(client, models, 0).Refresh(ctx)
		if err != nil {
			return fmt.Errorf("fetch model catalog: %w", err)
		}

		tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer tw.Flush()

		if len(modelsResolve) > 0 {
			resolver := registry.NewResolver(resolverOptions(cfg))
			fmt.Fprintln(tw, "REQUESTED\tRESOLVED\tTIER")
			for _, name := range modelsResolve {
				res := resolver.ResolveDetailed(name, catalog)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, res.Model, res.Tier)
			}
			return nil
		}

		fmt.Fprintln(tw, "ID\tOWNED BY\tENDPOINTS")
		for _, m := range catalog.Models() {
			fmt.Fprintf(tw, "%s\t%s\t%v\n", m.ID, m.OwnedBy, m.SupportedEndpoints)
		}
		return nil
	},
}

func init() {
	modelsCmd.Flags().StringArrayVarP(&modelsResolve, "resolve", "r", nil, "model name to resolve (repeatable)")
	rootCmd.AddCommand(modelsCmd)
}
