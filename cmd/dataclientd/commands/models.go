package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/leeforge/dataclient/logging"
	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model accessor bindings",
	Long: `Initialize the dataclient component without connecting and list the
model accessor bindings it registers in the container.`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print JSON instead of a table")
}

func runModels(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	settings.Log.Director = ""
	settings.Log.Level = "warn"

	logger, logCloser, err := logging.New(settings.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	a, err := newApp(settings, logger)
	if err != nil {
		return err
	}
	defer a.runtime.Shutdown(context.Background())

	return printModels(cmd.Context(), cmd.OutOrStdout(), a, modelsJSON)
}

func printModels(ctx context.Context, out io.Writer, a *app, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.runtime.Init(ctx); err != nil {
		return err
	}
	infos, err := a.data.Models()
	if err != nil {
		return err
	}

	if asJSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKEY\tTAGS\tLOCKED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", info.Name, info.Key, strings.Join(info.Tags, ","), info.Locked)
	}
	return w.Flush()
}
