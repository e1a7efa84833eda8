package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
)

const receiptArchiveTimeout = time.Minute

// ReceiptArchiver uploads the PDF receipt of every settled sale to a Drive
// folder. Uploads run in the background; a receipt already in the folder is
// not uploaded twice.
type ReceiptArchiver struct {
	receipts ReceiptServiceInterface
	drive    DriveServiceInterface
	folderID string
	wg       sync.WaitGroup
}

var _ EventDispatcher = (*ReceiptArchiver)(nil)

// NewReceiptArchiver creates a new ReceiptArchiver
func NewReceiptArchiver(receipts ReceiptServiceInterface, drive DriveServiceInterface, folderID string) *ReceiptArchiver {
	return &ReceiptArchiver{
		receipts: receipts,
		drive:    drive,
		folderID: folderID,
	}
}

func (a *ReceiptArchiver) Dispatch(event Event) error {
	settled, ok := event.(models.SaleSettled)
	if !ok {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), receiptArchiveTimeout)
		defer cancel()
		if _, err := a.Archive(ctx, settled.Record); err != nil {
			log.WithError(err).WithField("saleId", settled.Record.SaleID).Error("❌ Failed to archive receipt")
		}
	}()
	return nil
}

// Archive uploads one receipt and returns its Drive file id
func (a *ReceiptArchiver) Archive(ctx context.Context, record models.HistoryRecord) (string, error) {
	name := ReceiptFileName(record)

	existing, err := a.drive.FindFile(ctx, a.folderID, name)
	if err != nil {
		return "", errors.Wrap(err, "look up receipt")
	}
	if existing != "" {
		log.WithField("name", name).Info("⏭️  Receipt already archived")
		return existing, nil
	}

	pdf, err := a.receipts.GeneratePDF(ctx, record)
	if err != nil {
		return "", errors.Wrap(err, "render receipt")
	}
	return a.drive.UploadFile(ctx, a.folderID, name, "application/pdf", pdf)
}

// Wait blocks until the running uploads finish or ctx ends
func (a *ReceiptArchiver) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
