// Command remesas-tool parses remesa workbooks offline and exports stored
// remesas.
//
//	remesas-tool parse-budget presupuesto.xlsx
//	remesas-tool parse-remesa "Remesa 05.xlsx"
//	remesas-tool parse-history "BD Remesas.xlsx"
//	remesas-tool export -remesa <id> -out remesa.xlsx [-budget]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"remesas/internal/backend"
	"remesas/internal/cli"
	"remesas/internal/config"
	applog "remesas/internal/log"
	"remesas/internal/spreadsheet"
)

const usage = `usage:
  remesas-tool parse-budget|parse-remesa|parse-history [-sheet name] <file>
  remesas-tool export -remesa <id> -out <file> [-budget]`

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		logger.Error("Command failed", applog.FieldError, err)
		os.Exit(1)
	}
}

var errUsage = errors.New(usage)

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "parse-budget", "parse-remesa", "parse-history":
		return parse(cmd, rest, stdout)
	case "export":
		return export(ctx, rest, config.Load(), stdout)
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}

func parse(cmd string, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	sheet := fs.String("sheet", "", "sheet name, first sheet when empty")
	suffix := fs.String("suffix", "MN", "remesa suffix when the sheet gives none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	opts := spreadsheet.Options{SheetName: *sheet, BaseSuffix: *suffix}
	var out any
	switch cmd {
	case "parse-budget":
		out, err = spreadsheet.ParseBudget(f, opts)
	case "parse-remesa":
		out, err = spreadsheet.ParseRemesa(f, opts)
	case "parse-history":
		out, err = spreadsheet.ParseHistory(f, opts)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", cmd, fs.Arg(0), err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func export(ctx context.Context, args []string, cfg *config.Config, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	remesaID := fs.String("remesa", "", "remesa id")
	outPath := fs.String("out", "", "output .xlsx path, the suggested file name when empty")
	withBudget := fs.Bool("budget", false, "add budget, paid and available columns")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *remesaID == "" {
		return errUsage
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	bcfg.AMQPURL = ""
	res, err := backend.NewFactory(nil).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer res.Cleanup()
	app := backend.NewApp(res, backend.AppOptions{BaseSuffix: cfg.BaseSuffix})

	data, err := app.Export.Load(ctx, *remesaID, *withBudget)
	if err != nil {
		return err
	}
	path := *outPath
	if path == "" {
		path = spreadsheet.ExportFileName(data.Project, data.Remesa)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := spreadsheet.ExportRemesa(f, *data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}
