package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"pdv-sorveteria/app"
	"pdv-sorveteria/config"
	"pdv-sorveteria/db"
	"pdv-sorveteria/pricing"
	"pdv-sorveteria/service"
	"pdv-sorveteria/utils"
)

func main() {
	cliApp := &cli.App{
		Name:   "pdv-sorveteria",
		Usage:  "ice-cream shop sales terminal",
		Before: setup,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the terminal HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the database migrations",
				Action: migrate,
			},
			{
				Name:  "history",
				Usage: "print the sales history, most recent first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "number of sales to print (0 for all)"},
					&cli.StringFlag{Name: "category", Usage: "print the quantity sold per category matching this text"},
					&cli.BoolFlag{Name: "report", Usage: "print the quantity sold per category"},
					&cli.StringFlag{Name: "from", Usage: "first day of the report (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "to", Usage: "last day of the report (YYYY-MM-DD)"},
				},
				Action: history,
			},
			{
				Name:  "receipts-export",
				Usage: "save the PDF receipts of settled sales to a folder",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Value: "recibos", Usage: "destination folder"},
					&cli.StringFlag{Name: "from", Usage: "first day to export (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "to", Usage: "last day to export (YYYY-MM-DD)"},
				},
				Action: receiptsExport,
			},
			{
				Name:   "catalog-sync",
				Usage:  "import the catalog spreadsheet into the database",
				Action: catalogSync,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.WithError(err).Fatal("❌ Command failed")
	}
}

var cfg *config.Config

func setup(_ *cli.Context) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	return config.ConfigureLogging(cfg.LogLevel, cfg.LogFormat)
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize application
	a, err := app.Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func migrate(c *cli.Context) error {
	if cfg.StoreBackend != config.BackendPostgres {
		return fmt.Errorf("migrate needs STORE_BACKEND=%s", config.BackendPostgres)
	}
	if err := db.InitDB(c.Context, cfg.Database()); err != nil {
		return err
	}
	defer db.CloseDB()
	return db.Migrate(db.DB)
}

func history(c *cli.Context) error {
	ctx := c.Context
	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	historyService := service.NewHistoryService(stores.History)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if c.Bool("report") || c.IsSet("category") {
		report, err := historyService.CategoryReport(ctx, service.ReportFilter{
			Category: c.String("category"),
			From:     c.String("from"),
			To:       c.String("to"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "CATEGORIA\tQUANTIDADE")
		for _, row := range report {
			fmt.Fprintf(w, "%s\t%d\n", row.Category, row.Quantity)
		}
		return nil
	}

	records, err := historyService.List(ctx, c.Int("limit"))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "DATA\tHORARIO\tTOTAL\tPAGAMENTO\tITENS\tVENDA")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Date, r.Time, utils.FormatBRL(r.FinalTotal), r.PaymentMethod, r.TotalQuantity, r.SaleID)
	}
	return nil
}

func receiptsExport(c *cli.Context) error {
	ctx := c.Context
	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	methods, err := cfg.PromotionMethods()
	if err != nil {
		return err
	}
	receipts, err := service.NewReceiptService(pricing.NewEngine(methods...), cfg.ReceiptTitle, cfg.ChromePath)
	if err != nil {
		return err
	}

	exporter := service.NewReceiptExportService(service.NewHistoryService(stores.History), receipts)
	stats, err := exporter.ExportReceipts(ctx, c.String("dir"), c.String("from"), c.String("to"))
	if err != nil {
		return err
	}
	for _, msg := range stats.Errors {
		log.Warn("⚠️  " + msg)
	}
	log.WithFields(log.Fields{"total": stats.Total, "exported": stats.Exported, "skipped": stats.Skipped}).Info("✅ Receipts exported")
	return nil
}

func catalogSync(c *cli.Context) error {
	stores, err := app.OpenStores(c.Context, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	if stores.CatalogSource == nil {
		return fmt.Errorf("catalog-sync needs the postgres backend with CATALOG_SPREADSHEET_ID and GOOGLE_APPLICATION_CREDENTIALS")
	}
	stats, err := service.NewSyncService(stores.CatalogSource, stores.Catalog).SyncCatalog(c.Context)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"total": stats.Total, "saved": stats.Saved, "failed": stats.Failed}).Info("✅ Catalog synchronized")
	return nil
}
