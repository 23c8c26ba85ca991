package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eonurk/finance-bro/models"
	"github.com/eonurk/finance-bro/services/scanner"
	"github.com/eonurk/finance-bro/services/stream"
)

// ScannerController exposes the notification feed and scan parameters.
type ScannerController struct {
	scanner *scanner.Scanner
	hub     *stream.Hub
}

// NewScannerController creates a scanner controller.
func NewScannerController(s *scanner.Scanner, hub *stream.Hub) *ScannerController {
	return &ScannerController{scanner: s, hub: hub}
}

// GetNotifications returns the current feed with scanner status.
// GET /api/v1/notifications
func (sc *ScannerController) GetNotifications(c *gin.Context) {
	records, status := sc.scanner.Feed()
	c.JSON(http.StatusOK, gin.H{
		"data":   records,
		"status": status,
	})
}

// scanConfigPayload is the wire form of scanner.Config with durations in
// seconds.
type scanConfigPayload struct {
	Symbols          []string `json:"symbols"`
	Period           string   `json:"period"`
	Indicators       []string `json:"indicators"`
	IntervalSeconds  int      `json:"interval_seconds"`
	StalenessSeconds int      `json:"staleness_seconds"`
}

func configPayload(cfg scanner.Config) scanConfigPayload {
	inds := make([]string, len(cfg.Indicators))
	for i, ind := range cfg.Indicators {
		inds[i] = string(ind)
	}
	return scanConfigPayload{
		Symbols:          cfg.Symbols,
		Period:           string(cfg.Period),
		Indicators:       inds,
		IntervalSeconds:  int(cfg.Interval.Seconds()),
		StalenessSeconds: int(cfg.Staleness.Seconds()),
	}
}

// GetConfig returns the current scan parameters.
// GET /api/v1/scanner/config
func (sc *ScannerController) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": configPayload(sc.scanner.Config())})
}

// UpdateConfig replaces the scan parameters. Omitted fields keep their
// current values.
// PUT /api/v1/scanner/config
func (sc *ScannerController) UpdateConfig(c *gin.Context) {
	var payload scanConfigPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	cfg := sc.scanner.Config()
	if payload.Symbols != nil {
		cfg.Symbols = payload.Symbols
	}
	if payload.Period != "" {
		period, err := models.ParsePeriod(payload.Period)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg.Period = period
	}
	if payload.Indicators != nil {
		inds := make([]models.Indicator, 0, len(payload.Indicators))
		for _, raw := range payload.Indicators {
			ind, err := models.ParseIndicator(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			inds = append(inds, ind)
		}
		cfg.Indicators = inds
	}
	if payload.IntervalSeconds > 0 {
		cfg.Interval = time.Duration(payload.IntervalSeconds) * time.Second
	}
	if payload.StalenessSeconds > 0 {
		cfg.Staleness = time.Duration(payload.StalenessSeconds) * time.Second
	}

	if err := sc.scanner.UpdateConfig(cfg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": configPayload(sc.scanner.Config())})
}

// RunScan triggers one scan cycle immediately.
// POST /api/v1/scanner/run
func (sc *ScannerController) RunScan(c *gin.Context) {
	if err := sc.scanner.RunNow(); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	records, scanStatus := sc.scanner.Feed()
	c.JSON(http.StatusOK, gin.H{
		"message": "scan completed",
		"data":    records,
		"status":  scanStatus,
	})
}

// HandleWebSocket upgrades the connection for the live feed.
// GET /api/v1/notifications/ws
func (sc *ScannerController) HandleWebSocket(c *gin.Context) {
	sc.hub.HandleWebSocket(c.Writer, c.Request)
}

// GetStreamStatus reports hub occupancy.
// GET /api/v1/notifications/stream/status
func (sc *ScannerController) GetStreamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"client_count": sc.hub.ClientCount(),
		"max_clients":  stream.MaxClients,
	})
}
