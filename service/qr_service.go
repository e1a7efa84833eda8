package service

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

const (
	// DefaultQRSize is the side of the Pix QR image in pixels
	DefaultQRSize = 320
	maxQRSize     = 1024
)

// RenderPixQR renders a Pix copy-and-paste payload as a square PNG.
// The code is drawn one pixel per module and scaled without smoothing so
// the modules stay sharp on the customer display.
func RenderPixQR(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("empty QR payload")
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	matrix := code.Image(-1)
	scaled := imaging.Resize(matrix, size, size, imaging.NearestNeighbor)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	log.WithFields(log.Fields{"size": size, "bytes": buf.Len()}).Debug("📱 Pix QR rendered")
	return buf.Bytes(), nil
}
