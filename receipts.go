package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/middlewares"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/reports"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/workflow"
)

// receiptAPI holds the assembled pipeline plus the direct store handles the
// export and ops endpoints use. It is wired by init() once the DB is up;
// the readiness middleware shields the handlers until then.
type receiptAPI struct {
	logger   *logrus.Logger
	pipeline atomic.Pointer[workflow.ReceiptPipeline]
	receipts atomic.Pointer[models.ReceiptDB]
	jobs     atomic.Pointer[models.JobDB]
}

func (a *receiptAPI) init(db *gorm.DB, extractor workflow.Extractor) {
	receipts := models.NewReceiptDB(db)
	jobs := models.NewJobDB(db)
	a.receipts.Store(receipts)
	a.jobs.Store(jobs)
	a.pipeline.Store(workflow.NewReceiptPipeline(workflow.PipelineDeps{
		Receipts:    receipts,
		Jobs:        jobs,
		Objects:     utils.NewGCSObjectStore(),
		Extractor:   extractor,
		Expenses:    models.NewExpenseDB(db),
		Usage:       models.NewUsageDB(db),
		Corrections: models.NewCorrectionDB(db),
		Publisher:   progressPublisher{},
		Logger:      a.logger,
	}))
}

// progressPublisher adapts the pubsub helper to the pipeline interface.
type progressPublisher struct{}

func (progressPublisher) Publish(ctx context.Context, event config.ProgressEvent) (string, error) {
	return config.PublishProgressEvent(ctx, event)
}

func writePipelineError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	switch {
	case errors.Is(err, utils.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "monthly scan limit reached"})
	case errors.Is(err, utils.ErrUnsupportedMedia):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only JPEG, PNG and WebP images are accepted"})
	case errors.Is(err, utils.ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds the 10MB limit"})
	case errors.Is(err, utils.ErrNotFoundOrForbidden):
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, utils.ErrStorageError):
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not store the receipt, try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func requireBusiness(c *gin.Context) (string, bool) {
	businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
	if !ok || businessId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return businessId, true
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *receiptAPI) loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}

		user, err := models.GetUserByUsername(c.Request.Context(), config.GetDB(), req.Username)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err := utils.ComparePassword(user.PasswordHash, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(user.ID, user.Role)
		if err != nil {
			config.LogError(a.logger, "receipts.go", "loginHandler", "generate token", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func (a *receiptAPI) submitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := requireBusiness(c)
		if !ok {
			return
		}

		fileHeader, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if fileHeader.Size > workflow.MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds the 10MB limit"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, workflow.MaxUploadSize+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
			return
		}

		opts := workflow.SubmitOptions{
			Category:    c.PostForm("category"),
			Description: c.PostForm("description"),
		}
		if strings.EqualFold(c.PostForm("create_expense"), "true") {
			walletId, err := strconv.Atoi(c.PostForm("wallet_id"))
			if err != nil || walletId <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "wallet_id is required when create_expense is true"})
				return
			}
			opts.CreateExpense = true
			opts.WalletId = walletId
		}

		ctx, span := tracer.Start(c.Request.Context(), "receipts.submit")
		defer span.End()

		result, err := a.pipeline.Load().Submit(ctx, businessId, data, fileHeader.Filename, opts)
		if err != nil {
			writePipelineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func (a *receiptAPI) correctHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := requireBusiness(c)
		if !ok {
			return
		}
		receiptId, err := strconv.Atoi(c.Param("id"))
		if err != nil || receiptId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt id"})
			return
		}

		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "receipts.correct")
		defer span.End()

		result, err := a.pipeline.Load().Correct(ctx, businessId, receiptId, payload)
		if err != nil {
			writePipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (a *receiptAPI) deleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := requireBusiness(c)
		if !ok {
			return
		}
		receiptId, err := strconv.Atoi(c.Param("id"))
		if err != nil || receiptId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt id"})
			return
		}

		if err := a.pipeline.Load().Delete(c.Request.Context(), businessId, receiptId); err != nil {
			writePipelineError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (a *receiptAPI) statsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := requireBusiness(c)
		if !ok {
			return
		}
		windowDays, _ := strconv.Atoi(c.DefaultQuery("window_days", "30"))

		stats, err := a.pipeline.Load().Stats(c.Request.Context(), businessId, windowDays)
		if err != nil {
			writePipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func (a *receiptAPI) exportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := requireBusiness(c)
		if !ok {
			return
		}
		windowDays, _ := strconv.Atoi(c.DefaultQuery("window_days", "30"))
		if windowDays <= 0 {
			windowDays = 30
		}
		since := time.Now().UTC().AddDate(0, 0, -windowDays)

		receipts, err := a.receipts.Load().ListSince(c.Request.Context(), businessId, since)
		if err != nil {
			writePipelineError(c, err)
			return
		}
		statuses, err := a.jobs.Load().StatusesSince(c.Request.Context(), businessId, since)
		if err != nil {
			writePipelineError(c, err)
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipts-%s.xlsx", time.Now().Format("2006-01-02")))
		if err := reports.WriteReceiptsWorkbook(c.Writer, receipts, statuses); err != nil {
			config.LogError(a.logger, "receipts.go", "exportHandler", "write workbook", logrus.Fields{"businessId": businessId}, err)
		}
	}
}

func (a *receiptAPI) needsReviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := requireBusiness(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		jobs, err := a.jobs.Load().ListNeedsReview(c.Request.Context(), businessId, limit)
		if err != nil {
			writePipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

func (a *receiptAPI) stuckJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := middlewares.RequireAdmin(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		olderThanMin, _ := strconv.Atoi(c.DefaultQuery("older_than_minutes", "15"))
		if olderThanMin <= 0 {
			olderThanMin = 15
		}

		jobs, err := a.jobs.Load().ListStuck(c.Request.Context(), time.Duration(olderThanMin)*time.Minute, 100)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}
