package deployments

import (
	"strconv"

	"go_sitegen/internal/deploy"
	"go_sitegen/internal/httpx"

	"github.com/gin-gonic/gin"
)

// TriggerRequest represents a deployment trigger request body
type TriggerRequest struct {
	SiteID int `json:"siteId" binding:"required"`
}

// CancelRequest represents a deployment cancel request body
type CancelRequest struct {
	DeploymentID int `json:"deploymentId" binding:"required"`
}

// LogsResponse represents the build log of one deployment
type LogsResponse struct {
	DeploymentID int      `json:"deploymentId"`
	Status       string   `json:"status"`
	Lines        []string `json:"lines"`
}

// TriggerHandler queues a new deployment for a site
func TriggerHandler(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamMissing("siteId is required"))
			return
		}

		dep, appErr := svc.Trigger(req.SiteID)
		if appErr != nil {
			httpx.FailErr(c, appErr)
			return
		}
		httpx.OK(c, dep)
	}
}

// CancelHandler cancels a pending deployment
func CancelHandler(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamMissing("deploymentId is required"))
			return
		}

		if appErr := svc.Cancel(req.DeploymentID); appErr != nil {
			httpx.FailErr(c, appErr)
			return
		}
		httpx.OKMsg(c, "deployment cancelled", nil)
	}
}

// GetHandler returns one deployment by id
func GetHandler(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid deployment id"))
			return
		}

		dep, appErr := svc.Get(id)
		if appErr != nil {
			httpx.FailErr(c, appErr)
			return
		}
		httpx.OK(c, dep)
	}
}

// LogsHandler returns the ordered build log lines of one deployment
func LogsHandler(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid deployment id"))
			return
		}

		status, lines, appErr := svc.Logs(id)
		if appErr != nil {
			httpx.FailErr(c, appErr)
			return
		}
		if lines == nil {
			lines = []string{}
		}
		httpx.OK(c, LogsResponse{
			DeploymentID: id,
			Status:       string(status),
			Lines:        lines,
		})
	}
}

// ListHandler returns deployments newest-first with pagination, optionally
// filtered by siteId
func ListHandler(svc *deploy.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		siteID, _ := strconv.Atoi(c.DefaultQuery("siteId", "0"))
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

		deps, total, appErr := svc.List(siteID, page, pageSize)
		if appErr != nil {
			httpx.FailErr(c, appErr)
			return
		}
		if page < 1 {
			page = 1
		}
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}
		httpx.OKItems(c, deps, total, page, pageSize)
	}
}
