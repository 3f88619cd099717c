package workflow

import (
	"context"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

// checkQuota blocks free-tier businesses that already used their monthly
// scan allowance. Paid businesses pass through without a count lookup.
func (p *ReceiptPipeline) checkQuota(ctx context.Context, businessId string) error {
	tier, err := p.usage.TierFor(ctx, businessId)
	if err != nil {
		config.LogError(p.logger, "workflow", "checkQuota", "resolve account tier", logrus.Fields{"businessId": businessId}, err)
		return err
	}
	if tier == models.AccountTierPaid {
		return nil
	}

	count, err := p.usage.MonthlyCount(ctx, businessId, models.FeatureReceiptScan, models.UsageMonth(p.now()))
	if err != nil {
		config.LogError(p.logger, "workflow", "checkQuota", "read monthly usage", logrus.Fields{"businessId": businessId}, err)
		return err
	}
	if count >= models.FreeTierMonthlyScanLimit {
		return utils.ErrQuotaExceeded
	}
	return nil
}
