package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"bitbucket.org/mmdatafocus/itc_backend/sheet"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
	"bitbucket.org/mmdatafocus/itc_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultPort   = "8080"
	maxUploadSize = 50 << 20
)

type app struct {
	cfg    *config.ReconConfig
	logger *logrus.Logger
	runner atomic.Pointer[workflow.Runner]
}

type reconcileForm struct {
	Cutoff     string `form:"cutoff" binding:"omitempty,datetime=2006-01-02"`
	FyStart    string `form:"fy_start" binding:"omitempty,oneof=Jan Feb Mar Apr May Jun Jul Aug Sep Oct Nov Dec"`
	GstnSheet  string `form:"gstn_sheet"`
	BooksSheet string `form:"books_sheet"`
	HeaderRow  int    `form:"header_row" binding:"omitempty,min=1"`
	Format     string `form:"format" binding:"omitempty,oneof=xlsx json"`
}

type runResponse struct {
	RunId         string                    `json:"run_id"`
	Fingerprint   string                    `json:"fingerprint"`
	CorrelationId string                    `json:"correlation_id"`
	Cutoff        string                    `json:"cutoff"`
	Summary       reconcile.Summary         `json:"summary"`
	Diagnostics   []string                  `json:"diagnostics"`
	Outcomes      []workflow.PersistOutcome `json:"outcomes"`
	Sheets        map[string]int            `json:"sheets"`
}

func (a *app) reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runner := a.runner.Load()
		if runner == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not ready"})
			return
		}

		var form reconcileForm
		if err := c.ShouldBind(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		wb, err := sheet.OpenReader(f)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		defer wb.Close()

		opts := reconcile.DefaultOptions()
		opts.FiscalYearStartMonth = a.cfg.FiscalYearStartMonth
		opts.KeyNormalizer = a.cfg.KeyNormalizer
		opts.Cutoff = a.cfg.CutoffDate
		if form.Cutoff != "" {
			opts.Cutoff, _ = time.Parse("2006-01-02", form.Cutoff)
		}
		if form.FyStart != "" {
			opts.FiscalYearStartMonth, _ = utils.GetFiscalYearStartMonth(form.FyStart)
		}
		gstnSheet := firstNonEmpty(form.GstnSheet, a.cfg.GstnSheet)
		booksSheet := firstNonEmpty(form.BooksSheet, a.cfg.BooksSheet)
		headerRow := a.cfg.HeaderRow
		if form.HeaderRow > 0 {
			headerRow = form.HeaderRow
		}

		gstn, books, err := wb.LoadSources(gstnSheet, booksSheet, headerRow, opts.Schema)
		if err != nil {
			status := http.StatusInternalServerError
			if workflow.IsFatalInput(err) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		target := sheet.NewWorkbook()
		defer target.Close()
		out, err := runner.Run(c.Request.Context(), workflow.RunInput{
			SourceName: filepath.Base(fileHeader.Filename),
			Gstn:       gstn,
			Books:      books,
			Options:    opts,
			Target:     target,
		})
		switch {
		case err == nil:
		case errors.Is(err, workflow.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case workflow.IsFatalInput(err):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed"})
			return
		}

		c.Header("X-Run-Id", out.RunId)
		c.Header("X-Correlation-Id", out.CorrelationId)
		c.Header("X-Recon-Diagnostics", strconv.Itoa(len(out.Result.Diagnostics)))

		if form.Format == "json" {
			c.JSON(http.StatusOK, newRunResponse(out))
			return
		}

		var buf bytes.Buffer
		if _, err := target.WriteTo(&buf); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write result workbook"})
			return
		}
		name := strings.TrimSuffix(filepath.Base(fileHeader.Filename), filepath.Ext(fileHeader.Filename)) + "_RESULT.xlsx"
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, utils.XlsxContentType, buf.Bytes())
	}
}

func newRunResponse(out *workflow.RunOutput) runResponse {
	resp := runResponse{
		RunId:         out.RunId,
		Fingerprint:   out.Fingerprint,
		CorrelationId: out.CorrelationId,
		Cutoff:        out.Result.Cutoff.Format("2006-01-02"),
		Summary:       out.Summary,
		Diagnostics:   make([]string, 0, len(out.Result.Diagnostics)),
		Outcomes:      out.Outcomes,
		Sheets:        map[string]int{},
	}
	for _, d := range out.Result.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, d.String())
	}
	for _, t := range out.Result.Tables {
		resp.Sheets[t.Name] = t.Len()
	}
	return resp
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"field":          "http",
				"path":           c.Request.URL.Path,
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Run-Id", "X-Correlation-Id", "X-Recon-Diagnostics")

	r.Use(cors.New(corsConfig))
	r.Use(customErrorLogger(a.logger))
	r.Use(gin.Recovery())
	r.POST("/reconcile", a.reconcileHandler())
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	cfg, err := config.LoadReconConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(err.Error())
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	a := &app{cfg: cfg, logger: logger}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: a.router(),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open; /reconcile answers 503 until then.
	runner, closeRunner, err := workflow.NewRunnerFromConfig(sigCtx, cfg, logger, 0)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Error("dependencies not ready: " + err.Error())
	} else {
		defer closeRunner()
		a.runner.Store(runner)
		log.Printf("Server started successfully on :%s", port)
	}

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
