package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/tricked-dev/trickster/trickster"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the Trickster bot and (optionally) the state API",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := trickster.New(cfg)
		if err != nil {
			log.Fatalf("error creating trickster: %s", err.Error())
		}

		if err = bot.Run(ctx); err != nil {
			log.Fatalf("error running trickster: %s", err.Error())
		}
	},
}

//goland:noinspection GoLinter
func init() {
	rootCmd.AddCommand(runCmd)
}
