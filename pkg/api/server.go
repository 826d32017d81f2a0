package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/video-system/vrw/pkg/array"
	"github.com/video-system/vrw/pkg/index"
	"github.com/video-system/vrw/pkg/video"
)

const serviceName = "vrw"

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host     string
	Port     int
	MediaDir string // Request paths are resolved under it; empty allows any path
	Reader   video.ReaderConfig
}

// Server serves frames and frame selections over HTTP. Every request opens
// its own reader, so handlers never share decoder state.
type Server struct {
	cfg    ServerConfig
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{cfg: cfg}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/backends", s.handleBackends)
		v1.GET("/info", s.handleInfo)
		v1.GET("/frame", s.handleFrame)
		v1.GET("/array", s.handleArray)
		v1.GET("/stream", s.handleStream)
	}

	s.router = router
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the API server
func (s *Server) Start() error {
	logrus.WithFields(logrus.Fields{
		"function": "Server.Start",
		"addr":     s.server.Addr,
	}).Info("API server starting")
	return s.server.ListenAndServe()
}

// Stop stops the API server
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"function": "api.request",
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request served")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

func (s *Server) handleBackends(c *gin.Context) {
	c.JSON(http.StatusOK, video.Backends())
}

func (s *Server) handleInfo(c *gin.Context) {
	s.withReader(c, func(r *video.Reader) error {
		shape, err := r.Shape()
		if err != nil {
			return err
		}
		dtype, err := r.DType()
		if err != nil {
			return err
		}
		meta := r.Metadata()
		c.JSON(http.StatusOK, gin.H{
			"path":   c.Query("path"),
			"shape":  shape,
			"dtype":  dtype.String(),
			"fps":    r.FPS(),
			"codec":  meta.Codec,
			"frames": shape[0],
			"stats":  r.Stats(),
		})
		return nil
	})
}

// handleFrame returns one frame as PNG
func (s *Server) handleFrame(c *gin.Context) {
	i, err := strconv.Atoi(c.DefaultQuery("index", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid frame index: %v", err)})
		return
	}

	s.withReader(c, func(r *video.Reader) error {
		frame, err := r.Frame(i)
		if err != nil {
			return err
		}
		data, err := encodePNG(frame)
		if err != nil {
			return err
		}
		c.Data(http.StatusOK, "image/png", data)
		return nil
	})
}

// handleArray returns the raw bytes of an indexed selection. Shape and
// dtype are sent as headers; uint16 samples are little-endian.
func (s *Server) handleArray(c *gin.Context) {
	expr := c.Query("expr")

	s.withReader(c, func(r *video.Reader) error {
		a, err := r.GetExpr(expr)
		if err != nil {
			return err
		}
		c.Header("X-Array-Shape", formatShape(a.Shape()))
		c.Header("X-Array-Dtype", a.DType().String())
		c.Data(http.StatusOK, "application/octet-stream", a.Bytes())
		return nil
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamHeader is the first message of a stream
type streamHeader struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
}

// handleStream sends an indexed selection over a websocket: a JSON header
// with the shape and dtype, then one binary message per element of the
// leading axis. The stream ends with a close frame carrying any error.
func (s *Server) handleStream(c *gin.Context) {
	path, err := s.resolve(c.Query("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := index.ParseExpr(c.Query("expr"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Server.handleStream",
			"error":    err.Error(),
		}).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	cfg := s.cfg.Reader
	if c.Query("gray") == "true" {
		cfg.ToGray = true
	}

	sent := 0
	err = video.WithReader(c.Request.Context(), path, cfg, func(r *video.Reader) error {
		a, err := r.Get(tokens...)
		if err != nil {
			return err
		}
		if err := conn.WriteJSON(streamHeader{Shape: a.Shape(), DType: a.DType().String()}); err != nil {
			return err
		}
		if a.NDim() == 0 {
			sent++
			return conn.WriteMessage(websocket.BinaryMessage, a.Bytes())
		}
		for k := 0; k < a.Len(); k++ {
			if err := conn.WriteMessage(websocket.BinaryMessage, a.Take(0, []int{k}).Squeeze(0).Bytes()); err != nil {
				return err
			}
			sent++
		}
		return nil
	})

	code, reason := websocket.CloseNormalClosure, ""
	if err != nil {
		code, reason = websocket.CloseInternalServerErr, err.Error()
		if errors.Is(err, video.ErrIndex) {
			code = websocket.CloseUnsupportedData
		}
		// Control frame payloads are limited to 125 bytes
		if len(reason) > 120 {
			reason = reason[:120]
		}
	}
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))

	logrus.WithFields(logrus.Fields{
		"function": "Server.handleStream",
		"path":     path,
		"messages": sent,
		"close":    code,
	}).Debug("Stream finished")
}

// withReader opens the video named by the path query parameter, runs fn and
// maps its error to a JSON response
func (s *Server) withReader(c *gin.Context, fn func(*video.Reader) error) {
	path, err := s.resolve(c.Query("path"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := s.cfg.Reader
	if c.Query("gray") == "true" {
		cfg.ToGray = true
	}

	err = video.WithReader(c.Request.Context(), path, cfg, fn)
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// The response is already out; only closing the reader failed
		logrus.WithFields(logrus.Fields{
			"function": "Server.withReader",
			"path":     path,
			"error":    err.Error(),
		}).Warn("Request completed with error")
		return
	}

	status := statusFor(err)
	logrus.WithFields(logrus.Fields{
		"function": "Server.withReader",
		"path":     path,
		"status":   status,
		"error":    err.Error(),
	}).Warn("Request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

// resolve maps a request path onto the media directory
func (s *Server) resolve(p string) (string, error) {
	if p == "" {
		return "", errors.New("missing path parameter")
	}
	if s.cfg.MediaDir == "" {
		return p, nil
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("path %q must be relative to the media directory", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the media directory", p)
	}
	return filepath.Join(s.cfg.MediaDir, clean), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, video.ErrIndex), errors.Is(err, video.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, video.ErrBackend):
		return http.StatusNotFound
	case errors.Is(err, video.ErrDecode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// ParseShape parses an X-Array-Shape header value
func ParseShape(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	fields := strings.Split(s, ",")
	shape := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid shape %q", s)
		}
		shape[i] = n
	}
	return shape, nil
}

// DecodeArray rebuilds an array from an /api/v1/array response body and headers
func DecodeArray(body []byte, shapeHeader, dtypeHeader string) (*array.Array, error) {
	shape, err := ParseShape(shapeHeader)
	if err != nil {
		return nil, err
	}
	dtype, err := array.ParseDType(dtypeHeader)
	if err != nil {
		return nil, err
	}
	return array.FromBytes(dtype, body, shape...)
}
