// Package api provides the REST API server for sf2opxy
package api

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/sf2opxy/pkg/converter"
	"github.com/james-see/sf2opxy/pkg/converter/devices"
)

// @title sf2opxy API
// @version 1.0
// @description API for converting SoundFont banks into OP-XY presets
// @host localhost:8080
// @BasePath /api/v1

// MaxUploadBytes bounds the size of an uploaded bank
const MaxUploadBytes = 512 << 20

// StartServer starts the API server on the specified port
func StartServer(port int) error {
	return NewRouter(slog.Default()).Run(fmt.Sprintf(":%d", port))
}

// NewRouter builds the gin engine with every route registered
func NewRouter(logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{logger: logger}

	r := gin.Default()
	r.MaxMultipartMemory = 32 << 20

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", listFormats)
		v1.GET("/devices", listDevices)
		v1.GET("/options/defaults", defaultOptions)
		v1.POST("/inspect", h.inspect)
		v1.POST("/convert", h.convert)
		v1.POST("/convert/stream", h.convertStream)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

type handlers struct {
	logger *slog.Logger
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "sf2opxy",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns the accepted input formats and the conversions offered
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":     []string{"sf2", "sf3"},
		"conversions": converter.GetSupportedConversions(),
	})
}

// listDevices godoc
// @Summary List supported devices
// @Description Returns the target devices with their zone limits
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]map[string]any
// @Router /api/v1/devices [get]
func listDevices(c *gin.Context) {
	d := devices.NewOPXY()
	lo, hi := d.KeySpan()
	c.JSON(http.StatusOK, gin.H{
		"devices": []gin.H{
			{"id": d.ID(), "name": d.Name(), "zones": d.ZoneCeiling(), "keyLo": lo, "keyHi": hi},
		},
	})
}

// defaultOptions godoc
// @Summary Default conversion options
// @Description Returns the options used when a request sets none
// @Tags info
// @Produce json
// @Success 200 {object} converter.Options
// @Router /api/v1/options/defaults [get]
func defaultOptions(c *gin.Context) {
	c.JSON(http.StatusOK, converter.DefaultOptions())
}

// deviceFor resolves the device query parameter
func deviceFor(c *gin.Context) (converter.Device, error) {
	switch name := strings.ToLower(c.DefaultQuery("device", devices.OPXYDeviceID)); name {
	case devices.OPXYDeviceID, "op-xy":
		return devices.NewOPXY(), nil
	default:
		return nil, fmt.Errorf("unknown device %q", name)
	}
}

type upload struct {
	name string
	data []byte
}

// readUpload reads the multipart "file" field and checks its extension
func readUpload(c *gin.Context) (*upload, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, false
	}
	defer func() { _ = file.Close() }()

	if !converter.DetectFormat(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a .sf2 or .sf3 file"})
		return nil, false
	}
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, false
	}
	return &upload{name: header.Filename, data: data}, true
}

// requestOptions overlays the "options" form field and the preset query
// parameters on the defaults
func requestOptions(c *gin.Context, up *upload, logger *slog.Logger) (converter.Options, error) {
	opts := converter.DefaultOptions()
	if raw := c.PostForm("options"); raw != "" {
		var err error
		if opts, err = converter.ApplyOptionsJSON(opts, []byte(raw)); err != nil {
			return opts, err
		}
	}
	if presets := c.QueryArray("preset"); len(presets) > 0 {
		opts.Presets = presets
	}
	opts.Source = up.name
	opts.Logger = logger.With("source", up.name)
	return opts, nil
}

// failureStatus maps a run failure to an HTTP status
func failureStatus(err error) (int, gin.H) {
	var f *converter.Failure
	if !errors.As(err, &f) {
		return http.StatusInternalServerError, gin.H{"error": err.Error()}
	}
	body := gin.H{"error": f.Message, "kind": f.Kind}
	if f.Detail != "" {
		body["detail"] = f.Detail
	}
	switch f.Kind {
	case converter.FailureOptions:
		return http.StatusBadRequest, body
	case converter.FailureFormat:
		return http.StatusUnprocessableEntity, body
	case converter.FailureCancelled:
		return http.StatusRequestTimeout, body
	default:
		return http.StatusInternalServerError, body
	}
}

func forceFor(c *gin.Context) converter.Force {
	switch c.Query("force") {
	case "drum":
		return converter.ForceDrum
	case "instrument":
		return converter.ForceInstrument
	default:
		return converter.ForceNone
	}
}

// inspect godoc
// @Summary Inspect a SoundFont
// @Description Upload a bank and receive its presets with their classification
// @Tags convert
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "SoundFont to inspect"
// @Param force query string false "Force classification: drum or instrument"
// @Success 200 {object} converter.Inspection
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/inspect [post]
func (h *handlers) inspect(c *gin.Context) {
	up, ok := readUpload(c)
	if !ok {
		return
	}
	in, err := converter.Inspect(up.data, forceFor(c))
	if err != nil {
		c.JSON(failureStatus(err))
		return
	}
	c.JSON(http.StatusOK, in)
}

// convert godoc
// @Summary Convert a SoundFont
// @Description Upload a bank and receive a zip of preset directories plus the conversion log
// @Tags convert
// @Accept multipart/form-data
// @Produce application/zip
// @Param file formData file true "SoundFont to convert"
// @Param options formData string false "Options JSON overlaid on the defaults"
// @Param device query string false "Target device (default: opxy)"
// @Param preset query []string false "Preset names to convert"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert [post]
func (h *handlers) convert(c *gin.Context) {
	device, err := deviceFor(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	up, ok := readUpload(c)
	if !ok {
		return
	}
	opts, err := requestOptions(c, up, h.logger)
	if err != nil {
		c.JSON(failureStatus(&converter.Failure{Kind: converter.FailureOptions, Message: err.Error(), Err: err}))
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	report, err := converter.New(device).Run(c.Request.Context(), up.data, opts, zipWriter(zw))
	if err != nil {
		h.logger.Warn("conversion failed", "source", up.name, "error", err)
		c.JSON(failureStatus(err))
		return
	}
	if err := zw.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write archive"})
		return
	}

	outputName := strings.TrimSuffix(up.name, filepath.Ext(up.name)) + ".zip"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", outputName))
	c.Header("X-Presets-Converted", fmt.Sprint(report.Converted()))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// zipWriter returns an emit function adding artifacts to an archive
func zipWriter(zw *zip.Writer) func(converter.Artifact) error {
	return func(a converter.Artifact) error {
		w, err := zw.Create(a.Path)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", a.Path, err)
		}
		_, err = w.Write(a.Data)
		return err
	}
}

type sseEvent struct {
	name string
	data any
}

// convertStream godoc
// @Summary Convert a SoundFont with progress events
// @Description Upload a bank and receive server-sent progress, artifact and report events.
// @Description Artifact events carry path, kind and size; with data=true they also carry the base64 file content.
// @Description Use /api/v1/convert for a single zip of all files.
// @Tags convert
// @Accept multipart/form-data
// @Produce text/event-stream
// @Param file formData file true "SoundFont to convert"
// @Param options formData string false "Options JSON overlaid on the defaults"
// @Param device query string false "Target device (default: opxy)"
// @Param data query bool false "Include base64 artifact content"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} map[string]string
// @Router /api/v1/convert/stream [post]
func (h *handlers) convertStream(c *gin.Context) {
	device, err := deviceFor(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	up, ok := readUpload(c)
	if !ok {
		return
	}
	opts, err := requestOptions(c, up, h.logger)
	if err != nil {
		c.JSON(failureStatus(&converter.Failure{Kind: converter.FailureOptions, Message: err.Error(), Err: err}))
		return
	}

	withData := c.Query("data") == "true"
	ctx := c.Request.Context()
	events := make(chan sseEvent)
	send := func(ev sseEvent) error {
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	opts.Progress = func(current, total int, name string) {
		_ = send(sseEvent{"progress", gin.H{"current": current, "total": total, "preset": name}})
	}
	go func() {
		defer close(events)
		report, err := converter.New(device).Run(ctx, up.data, opts, func(a converter.Artifact) error {
			ev := gin.H{"path": a.Path, "kind": a.Kind, "size": len(a.Data)}
			if withData {
				// []byte marshals as base64
				ev["data"] = a.Data
			}
			return send(sseEvent{"artifact", ev})
		})
		if err != nil {
			_, body := failureStatus(err)
			_ = send(sseEvent{"error", body})
			return
		}
		_ = send(sseEvent{"report", report})
	}()

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(ev.name, ev.data)
		return true
	})
}
