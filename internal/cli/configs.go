package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/scrapedeck/internal/jobconfig"
)

var (
	saveJob    jobFlags
	showFormat string
)

var configsCmd = &cobra.Command{
	Use:     "configs",
	Aliases: []string{"config"},
	Short:   "Save and reuse named job configurations",
}

var configsSaveCmd = &cobra.Command{
	Use:   "save <name> [url]",
	Short: "Save a job configuration under a name",
	Long: `Save a job built from flags, a job file (--file) or another saved configuration (--from).
Saving under an existing name replaces it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var target string
		if len(args) == 2 {
			target = args[1]
		}
		cfg, err := saveJob.build(cmd.Context(), cmd, deck.store, target)
		if err != nil {
			return err
		}
		if err := deck.store.SaveConfig(cmd.Context(), args[0], cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration %q for %s\n", args[0], cfg.URL)
		return nil
	},
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := deck.store.ListConfigs(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No saved configurations")
			return nil
		}
		fmt.Fprintf(out, "%-24s %-20s %s\n", "NAME", "UPDATED", "URL")
		for _, c := range list {
			fmt.Fprintf(out, "%-24s %-20s %s\n", truncate(c.Name, 24), c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.URL)
		}
		return nil
	},
}

var configsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a saved configuration as a job file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		saved, err := deck.store.LoadConfig(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := jobconfig.Marshal(saved.Config, showFormat)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deck.store.DeleteConfig(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted configuration %q\n", args[0])
		return nil
	},
}

func init() {
	saveJob.register(configsSaveCmd)
	configsShowCmd.Flags().StringVarP(&showFormat, "output", "o", "yaml", "Output format: yaml/json")

	configsCmd.AddCommand(configsSaveCmd, configsListCmd, configsShowCmd, configsDeleteCmd)
}
