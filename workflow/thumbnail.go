package workflow

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
)

// generateThumbnail renders a 200px-wide JPEG preview of the receipt and
// stores it next to the original. Runs off the request path; any failure
// just leaves the receipt without a preview.
func (p *ReceiptPipeline) generateThumbnail(receipt *models.Receipt, data []byte) {
	receiptId := receipt.ID
	businessId := receipt.BusinessId
	p.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			config.LogError(p.logger, "workflow", "generateThumbnail", "decode image", logrus.Fields{"receiptId": receiptId}, err)
			return
		}
		thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
			config.LogError(p.logger, "workflow", "generateThumbnail", "encode thumbnail", logrus.Fields{"receiptId": receiptId}, err)
			return
		}

		key := thumbnailKey(businessId, receiptId)
		thumbnailURL, err := p.objects.Put(ctx, key, buf.Bytes(), "image/jpeg")
		if err != nil {
			config.LogError(p.logger, "workflow", "generateThumbnail", "upload thumbnail", logrus.Fields{"receiptId": receiptId}, err)
			return
		}
		if err := p.receipts.SaveThumbnailURL(ctx, receiptId, thumbnailURL); err != nil {
			config.LogError(p.logger, "workflow", "generateThumbnail", "save thumbnail url", logrus.Fields{"receiptId": receiptId}, err)
		}
	})
}

func thumbnailKey(businessId string, receiptId int) string {
	return fmt.Sprintf("%s/thumbnails/%d.jpg", businessId, receiptId)
}
