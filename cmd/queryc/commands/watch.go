package commands

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/relionix/queryc/cmd/queryc/ui"
	"github.com/relionix/queryc/cmd/queryc/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch the schema file and re-validate it on change",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&schemaPath, "schema", "schema.json", "path to the JSON-encoded schema model")
}

func runWatch(cmd *cobra.Command, args []string) error {
	w, err := watch.New(schemaPath, func() {
		if _, err := loadRegistry(schemaPath); err != nil {
			ui.PrintError("schema reload failed: %v", err)
			return
		}
		ui.PrintSuccess("schema reloaded from %s", schemaPath)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	ui.PrintInfo("watching %s for changes (ctrl-c to stop)", schemaPath)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}
