package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the locally answered commands",
	Long: `List the command table. Matching utterances are answered without calling
the model. Set VICTOR_COMMANDS_FILE to use your own table.`,
	Args: cobra.NoArgs,
	RunE: runCommands,
}

func runCommands(cmd *cobra.Command, args []string) error {
	matcher, err := loadCommands(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATTERN\tEFFECT")
	for _, s := range matcher.Specs() {
		effect := "reply"
		switch {
		case s.Open != "":
			effect = "open " + s.Open
		case s.Action != "":
			effect = s.Action
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Pattern, effect)
	}
	return w.Flush()
}
