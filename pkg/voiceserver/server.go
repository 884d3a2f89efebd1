package voiceserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// UploadResponse is the 201 body of POST /api/upload.
type UploadResponse struct {
	Message    string    `json:"message"`
	FileName   string    `json:"file_name"`
	FileKey    string    `json:"file_key"`
	FileSize   int64     `json:"file_size"`
	S3URL      string    `json:"s3_url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// VoiceItem is one entry of GET /api/voices.
type VoiceItem struct {
	FileName     string    `json:"file_name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Server is the HTTP front of the upload service.
type Server struct {
	settings *Settings
	store    ObjectStore
	hub      *EventHub
	engine   *gin.Engine
	logger   zerolog.Logger
	now      func() time.Time
}

func New(settings *Settings, store ObjectStore, logger zerolog.Logger) *Server {
	if !settings.Debug && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		settings: settings,
		store:    store,
		engine:   gin.New(),
		logger:   logger.With().Str("component", "voiceserver").Logger(),
		now:      time.Now,
	}
	s.hub = NewEventHub(s.logger)

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	s.engine.MaxMultipartMemory = settings.MaxUploadBytes

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.root)
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	{
		api.POST("/upload", s.upload)
		api.GET("/voices", s.listVoices)
		api.DELETE("/voices/:name", s.deleteVoice)
		api.GET("/events", s.events)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Events is the hub feeding GET /api/events.
func (s *Server) Events() *EventHub {
	return s.hub
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.settings.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Str("app", s.settings.AppName).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("Shutting down")
	// Hijacked event connections are not tracked by Shutdown.
	s.hub.Close()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Next()

		event := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to " + s.settings.AppName,
		"version": s.settings.AppVersion,
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorBody{Detail: detail})
}

// cleanFileName keeps only the final path element so a client cannot
// place objects outside the upload prefix.
func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.settings.MaxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			abortWithDetail(c, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}
		abortWithDetail(c, http.StatusUnprocessableEntity, "File is required")
		return
	}

	fileName := cleanFileName(header.Filename)
	if fileName == "" {
		abortWithDetail(c, http.StatusBadRequest, "File name is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		abortWithDetail(c, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		abortWithDetail(c, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}
	if len(data) == 0 {
		abortWithDetail(c, http.StatusBadRequest, "File is empty")
		return
	}

	key := UploadPrefix + fileName
	if err := s.store.Put(c.Request.Context(), key, data, header.Header.Get("Content-Type")); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Upload to bucket failed")
		abortWithDetail(c, http.StatusInternalServerError, storeFailure("upload file to S3", err))
		return
	}

	uploadedAt := s.now().UTC()
	c.JSON(http.StatusCreated, UploadResponse{
		Message:    "File uploaded successfully",
		FileName:   fileName,
		FileKey:    key,
		FileSize:   int64(len(data)),
		S3URL:      s.store.URL(key),
		UploadedAt: uploadedAt,
	})
	s.hub.Publish(VoiceEvent{Type: EventVoiceUploaded, FileName: fileName, At: uploadedAt})
}

func (s *Server) listVoices(c *gin.Context) {
	objects, err := s.store.List(c.Request.Context(), UploadPrefix)
	if err != nil {
		s.logger.Error().Err(err).Msg("Listing bucket failed")
		abortWithDetail(c, http.StatusInternalServerError, storeFailure("list files in S3", err))
		return
	}

	items := make([]VoiceItem, 0, len(objects))
	for _, obj := range objects {
		items = append(items, VoiceItem{
			FileName:     obj.Name(),
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC(),
			URL:          s.store.URL(obj.Key),
		})
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) deleteVoice(c *gin.Context) {
	fileName := cleanFileName(c.Param("name"))
	if fileName == "" {
		abortWithDetail(c, http.StatusBadRequest, "File name is required")
		return
	}

	key := UploadPrefix + fileName
	if err := s.store.Delete(c.Request.Context(), key); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Delete from bucket failed")
		abortWithDetail(c, http.StatusInternalServerError, storeFailure("delete file from S3", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted successfully", "file_key": key})
	s.hub.Publish(VoiceEvent{Type: EventVoiceDeleted, FileName: fileName, At: s.now().UTC()})
}

// storeFailure renders a bucket error: AWS failures report their code,
// anything else its text.
func storeFailure(action string, err error) string {
	if _, ok := err.(awserr.Error); ok {
		return "Failed to " + action + ": " + errorCode(err)
	}
	return "An unexpected error occurred: " + err.Error()
}
