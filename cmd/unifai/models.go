package main

import (
	"fmt"
	"strings"

	"github.com/martinemde/unifai/unifiedllm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models of the first provider that answers",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().Bool("catalog", false, "Print the built-in model catalog instead of querying providers")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if catalog, _ := cmd.Flags().GetBool("catalog"); catalog {
		for _, m := range unifiedllm.Catalog {
			fmt.Fprintf(out, "%-32s %-10s %8d  %s\n", m.ID, m.Provider, m.ContextWindow, catalogNotes(m))
		}
		return nil
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	client, cleanup, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := client.Models.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	servedByProvider(cmd, client)
	return nil
}

// catalogNotes summarizes capabilities and price for the catalog listing.
func catalogNotes(m unifiedllm.ModelInfo) string {
	var notes []string
	if m.MaxOutput != nil {
		notes = append(notes, fmt.Sprintf("max_output=%d", *m.MaxOutput))
	}
	if m.SupportsTools {
		notes = append(notes, "tools")
	}
	if m.SupportsJSONSchema {
		notes = append(notes, "json_schema")
	}
	if m.InputCostPerMillion != nil && m.OutputCostPerMillion != nil {
		notes = append(notes, fmt.Sprintf("$%.2f/$%.2f per 1M", *m.InputCostPerMillion, *m.OutputCostPerMillion))
	}
	return strings.Join(notes, " ")
}

func servedByProvider(cmd *cobra.Command, client *unifiedllm.Client) {
	if viper.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "[listed by %s/%s]\n", client.ActiveProvider(), client.GetActiveModel())
	}
}
