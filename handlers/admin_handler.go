package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"
	"github.com/sirupsen/logrus"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
	"ticket-settlement/queue"
	"ticket-settlement/services"
)

// AdminHandler is the operator surface: queue introspection, dead letter
// management, manual transfer retries and reservation release. It sits
// behind the deployment's admin auth proxy and does no auth of its own.
type AdminHandler struct {
	queue     *queue.RedisQueue
	transfers *services.TransferService
	locks     *services.LockService
	log       *logrus.Entry
}

func NewAdminHandler(q *queue.RedisQueue, transfers *services.TransferService, locks *services.LockService) *AdminHandler {
	return &AdminHandler{
		queue:     q,
		transfers: transfers,
		locks:     locks,
		log:       logrus.WithField("component", "admin"),
	}
}

func (h *AdminHandler) GetQueueStats(c echo.Context) error {
	stats, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	dlqStats, err := h.queue.DLQ().Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"queues": stats,
		"dlq":    dlqStats,
	})
}

func (h *AdminHandler) ListFailedJobs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	failed, err := h.queue.DLQ().List(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, failed)
}

func (h *AdminHandler) RequeueFailedJob(c echo.Context) error {
	jobID := c.PathParam("id")

	if err := h.queue.DLQ().Requeue(c.Request().Context(), jobID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}

	h.log.WithField("job_id", jobID).Info("dead letter requeued by operator")
	return c.JSON(http.StatusOK, map[string]string{"status": "requeued"})
}

func (h *AdminHandler) DeleteFailedJob(c echo.Context) error {
	jobID := c.PathParam("id")

	if err := h.queue.DLQ().Delete(c.Request().Context(), jobID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// RetryTransfer replays a failed transfer by reference while its retry key
// is still alive.
func (h *AdminHandler) RetryTransfer(c echo.Context) error {
	reference := c.PathParam("reference")

	err := h.transfers.Retry(c.Request().Context(), reference)
	if errors.Is(err, status.ErrRetryKeyExpired) {
		return c.JSON(http.StatusGone, map[string]string{"error": "retry window expired"})
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	h.log.WithField("reference", reference).Info("transfer retried by operator")
	return c.JSON(http.StatusOK, map[string]string{"status": "retry initiated"})
}

func (h *AdminHandler) GetArchivedTransfer(c echo.Context) error {
	reference := c.PathParam("reference")

	job, err := h.transfers.ArchivedFailure(c.Request().Context(), reference)
	if errors.Is(err, status.ErrRetryKeyExpired) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no archived failure for reference"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, job)
}

// ReleaseLock marks a reservation unlocked and enqueues the unlock job that
// restores its stock.
func (h *AdminHandler) ReleaseLock(c echo.Context) error {
	lockID := c.PathParam("lockId")
	ctx := c.Request().Context()

	if err := h.locks.Release(ctx, lockID); err != nil {
		if errors.Is(err, status.ErrLockExpired) {
			return c.JSON(http.StatusGone, map[string]string{"error": "lock already expired"})
		}
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}

	job, err := queue.NewJob(models.JobTypeUnlock, models.UnlockJob{LockID: lockID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if err := h.queue.Publish(ctx, job); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "unlock queued"})
}
