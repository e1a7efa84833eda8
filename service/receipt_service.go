package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
	"pdv-sorveteria/pricing"
	"pdv-sorveteria/utils"
)

//go:embed templates/receipt.html
var receiptTemplates embed.FS

const (
	receiptPaperWidth = 3.15 // 80mm in inches
	receiptBaseHeight = 2.4
	receiptLineHeight = 0.22
	receiptTimeout    = 30 * time.Second
)

// ReceiptServiceInterface defines the contract for sale receipts
type ReceiptServiceInterface interface {
	RenderHTML(record models.HistoryRecord) (string, error)
	GeneratePDF(ctx context.Context, record models.HistoryRecord) ([]byte, error)
}

// ReceiptService renders thermal-printer receipts for settled sales
type ReceiptService struct {
	tmpl       *template.Template
	engine     *pricing.Engine
	title      string
	chromePath string
}

var _ ReceiptServiceInterface = (*ReceiptService)(nil)

type receiptLine struct {
	Description string
	Quantity    int
	Subtotal    string
	Promoted    bool
}

// NewReceiptService parses the embedded template. chromePath may be empty.
func NewReceiptService(engine *pricing.Engine, title, chromePath string) (*ReceiptService, error) {
	tmpl, err := template.ParseFS(receiptTemplates, "templates/receipt.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse receipt template: %w", err)
	}
	if engine == nil {
		engine = pricing.Default()
	}
	if title == "" {
		title = "Sorveteria"
	}
	return &ReceiptService{
		tmpl:       tmpl,
		engine:     engine,
		title:      title,
		chromePath: chromePath,
	}, nil
}

// detectChromePath returns the configured browser, else the first common install found
func detectChromePath(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}

	paths := []string{
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/snap/bin/chromium",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// RenderHTML renders the receipt of a history record
func (s *ReceiptService) RenderHTML(record models.HistoryRecord) (string, error) {
	priced := s.engine.Evaluate(record.Lines, record.PaymentMethod)

	lines := make([]receiptLine, 0, len(priced.Lines))
	for _, l := range priced.Lines {
		lines = append(lines, receiptLine{
			Description: l.Label(),
			Quantity:    l.Quantity,
			Subtotal:    utils.FormatBRL(l.Subtotal),
			Promoted:    l.Promoted,
		})
	}

	method := string(record.PaymentMethod)
	if method == "" {
		method = "Não informado"
	}
	date := record.Date
	if t, err := time.Parse(models.HistoryDateLayout, record.Date); err == nil {
		date = t.Format("02/01/2006")
	}

	data := struct {
		Title  string
		Record models.HistoryRecord
		Date   string
		Lines  []receiptLine
		Total  string
		Method string
	}{
		Title:  s.title,
		Record: record,
		Date:   date,
		Lines:  lines,
		Total:  utils.FormatBRL(record.FinalTotal),
		Method: method,
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute receipt template: %w", err)
	}
	return buf.String(), nil
}

// GeneratePDF prints the receipt on 80mm paper with headless Chrome
func (s *ReceiptService) GeneratePDF(ctx context.Context, record models.HistoryRecord) ([]byte, error) {
	html, err := s.RenderHTML(record)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox, // Required for running in Docker/containers
	)
	if chromePath := detectChromePath(s.chromePath); chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	chromedpCtx, chromedpCancel := chromedp.NewContext(allocCtx)
	defer chromedpCancel()

	height := receiptBaseHeight + receiptLineHeight*float64(len(record.Lines))

	var pdfBuf []byte
	err = chromedp.Run(chromedpCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(receiptPaperWidth).
				WithPaperHeight(height).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt PDF: %w", err)
	}

	log.WithFields(log.Fields{"saleId": record.SaleID, "bytes": len(pdfBuf)}).Info("🧾 Receipt PDF generated")
	return pdfBuf, nil
}

// ReceiptFileName is the archive name of a receipt, sortable by date
func ReceiptFileName(record models.HistoryRecord) string {
	return fmt.Sprintf("%s_%s_%s.pdf", record.Date, strings.ReplaceAll(record.Time, ":", ""), record.SaleID)
}
