package main

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"translator-api-scalable/api"
	"translator-api-scalable/shared"
)

// multipartSlack covers the multipart envelope around the uploaded file.
const multipartSlack = 64 << 10

type server struct {
	cfg       *shared.Config
	db        shared.DatabaseClient
	mq        shared.MessageQueueClient
	store     shared.ObjectStore
	limiter   *shared.RateLimiter
	processor *shared.Processor // nil unless EMBEDDED_WORKER
	logger    log.Logger
	newID     func() string
	now       func() time.Time
}

func newServer(cfg *shared.Config, b *shared.Backends, limiter *shared.RateLimiter, processor *shared.Processor, logger log.Logger) *server {
	return &server{
		cfg:       cfg,
		db:        b.DB,
		mq:        b.Queue,
		store:     b.Store,
		limiter:   limiter,
		processor: processor,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

func (s *server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(corsMiddleware(s.cfg.AllowedOrigins))

	router.GET("/health", s.handleHealth)

	public := router.Group("/api")
	public.Use(s.rateLimit())
	{
		public.GET("/languages", s.handleLanguages)
		public.POST("/translate", s.uploadSizeGuard(), s.handleTranslate)
		public.GET("/status/:job_id", s.handleStatus)
		public.GET("/download/:job_id", s.handleDownload)
	}

	admin := router.Group("/admin")
	admin.Use(s.adminAuth())
	{
		admin.GET("/jobs", s.handleAdminListJobs)
		admin.GET("/jobs/:job_id", s.handleAdminGetJob)
		admin.DELETE("/jobs/:job_id", s.handleAdminDeleteJob)
	}
	return router
}

// abortDetail answers with the {"detail": ...} body every client expects.
func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{Detail: detail})
}

func (s *server) tooLargeDetail() string {
	return fmt.Sprintf("File too large. Max %d MB allowed.", s.cfg.MaxUploadBytes>>20)
}

// handleHealth: Basic health check for the API Gateway
func (s *server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"message": "API Gateway is healthy",
	}
	if s.processor != nil {
		body["active_workers"] = fmt.Sprintf("%d/%d", s.processor.Active(), s.processor.MaxWorkers())
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) handleLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, shared.Languages())
}

// handleTranslate: stores the upload, queues a job and returns its id immediately
func (s *server) handleTranslate(c *gin.Context) {
	ctx := c.Request.Context()

	fileHeader, err := c.FormFile(api.FileField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			abortDetail(c, http.StatusRequestEntityTooLarge, s.tooLargeDetail())
			return
		}
		abortDetail(c, http.StatusBadRequest, "Missing file")
		return
	}
	targetLang := c.PostForm(api.TargetLangField)
	if targetLang == "" {
		abortDetail(c, http.StatusBadRequest, "Missing target_lang")
		return
	}
	targetLang, ok := shared.NormalizeLanguage(targetLang)
	if !ok {
		abortDetail(c, http.StatusBadRequest, "Unsupported target language: "+targetLang)
		return
	}
	if err := shared.CheckExtension(fileHeader.Filename); err != nil {
		abortDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	if fileHeader.Size > s.cfg.MaxUploadBytes {
		abortDetail(c, http.StatusRequestEntityTooLarge, s.tooLargeDetail())
		return
	}

	jobID := s.newID()
	logger := log.With(s.logger, "job_id", jobID)
	job := &shared.Job{
		ID:         jobID,
		FileName:   fileHeader.Filename,
		TargetLang: targetLang,
		Phase:      api.PhaseUploading,
		SourceKey:  shared.SourceKey(jobID),
		CreatedAt:  s.now(),
	}

	// 1. Store initial job record
	if err := s.db.CreateJob(ctx, job); err != nil {
		level.Error(logger).Log("msg", "failed to create job", "err", err)
		abortDetail(c, http.StatusInternalServerError, "Failed to initialize job")
		return
	}

	// 2. Keep the source document for the worker
	src, err := fileHeader.Open()
	if err == nil {
		err = s.store.Put(ctx, job.SourceKey, src, fileHeader.Size)
		src.Close()
	}
	if err != nil {
		level.Error(logger).Log("msg", "failed to store upload", "err", err)
		s.failJob(c, job, "Failed to store upload")
		abortDetail(c, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	// 3. Queue the job
	job.Phase = api.PhaseQueued
	if err := s.db.UpdateJob(ctx, job); err != nil {
		level.Error(logger).Log("msg", "failed to mark job queued", "err", err)
		s.failJob(c, job, "Failed to initialize job")
		if err := s.store.Delete(ctx, job.SourceKey); err != nil {
			level.Warn(logger).Log("msg", "failed to remove stored upload", "err", err)
		}
		abortDetail(c, http.StatusInternalServerError, "Failed to initialize job")
		return
	}
	if err := s.mq.Publish(ctx, shared.JobMessage{JobID: jobID, TargetLang: targetLang}); err != nil {
		level.Error(logger).Log("msg", "failed to publish job", "err", err)
		s.failJob(c, job, fmt.Sprintf("Failed to queue job: %v", err))
		abortDetail(c, http.StatusInternalServerError, "Failed to submit job to processing queue")
		return
	}
	level.Info(logger).Log("msg", "job queued", "file", job.FileName, "size", fileHeader.Size, "target_lang", targetLang)

	c.JSON(http.StatusOK, api.UploadResponse{JobID: jobID})
}

func (s *server) failJob(c *gin.Context, job *shared.Job, reason string) {
	job.MarkFailed(s.now(), reason)
	if err := s.db.UpdateJob(c.Request.Context(), job); err != nil {
		level.Error(s.logger).Log("msg", "failed to mark job failed", "job_id", job.ID, "err", err)
	}
}

// lookupJob answers 404/500 itself and returns nil when the job cannot be served.
func (s *server) lookupJob(c *gin.Context) *shared.Job {
	jobID := c.Param("job_id")
	job, err := s.db.GetJob(c.Request.Context(), jobID)
	if errors.Is(err, shared.ErrJobNotFound) {
		abortDetail(c, http.StatusNotFound, "Job not found")
		return nil
	}
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to load job", "job_id", jobID, "err", err)
		abortDetail(c, http.StatusInternalServerError, "Failed to load job")
		return nil
	}
	return job
}

// handleStatus: point-in-time snapshot of a job
func (s *server) handleStatus(c *gin.Context) {
	job := s.lookupJob(c)
	if job == nil {
		return
	}
	c.JSON(http.StatusOK, job.Status())
}

// handleDownload: streams the translated artifact of a finished job
func (s *server) handleDownload(c *gin.Context) {
	job := s.lookupJob(c)
	if job == nil {
		return
	}
	if job.Phase != api.PhaseDone {
		abortDetail(c, http.StatusConflict, "Job not finished")
		return
	}
	key := job.ResultKey
	if key == "" {
		key = shared.ResultKey(job.ID)
	}
	rc, err := s.store.Get(c.Request.Context(), key)
	if errors.Is(err, shared.ErrObjectNotFound) {
		abortDetail(c, http.StatusNotFound, "Result not found")
		return
	}
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to open result", "job_id", job.ID, "err", err)
		abortDetail(c, http.StatusInternalServerError, "Failed to open result")
		return
	}
	defer rc.Close()

	name := job.ResultName
	if name == "" {
		name = shared.OutputName(job.FileName, job.TargetLang)
	}
	c.DataFromReader(http.StatusOK, -1, shared.ContentType(name), rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": name}),
	})
}

// handleAdminListJobs: Lists all jobs from the database
func (s *server) handleAdminListJobs(c *gin.Context) {
	jobs, err := s.db.GetAllJobs(c.Request.Context())
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to list jobs", "err", err)
		abortDetail(c, http.StatusInternalServerError, "Failed to retrieve jobs")
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *server) handleAdminGetJob(c *gin.Context) {
	job := s.lookupJob(c)
	if job == nil {
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleAdminDeleteJob: Deletes a job and its stored documents
func (s *server) handleAdminDeleteJob(c *gin.Context) {
	job := s.lookupJob(c)
	if job == nil {
		return
	}
	ctx := c.Request.Context()
	for _, key := range []string{job.SourceKey, job.ResultKey} {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, shared.ErrObjectNotFound) {
			// the record matters more than the file; keep going
			level.Warn(s.logger).Log("msg", "failed to delete object", "job_id", job.ID, "key", key, "err", err)
		}
	}
	if err := s.db.DeleteJob(ctx, job.ID); err != nil {
		level.Error(s.logger).Log("msg", "failed to delete job", "job_id", job.ID, "err", err)
		abortDetail(c, http.StatusInternalServerError, "Failed to delete job")
		return
	}
	level.Info(s.logger).Log("msg", "deleted job", "job_id", job.ID)
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Job %s and associated files deleted successfully.", job.ID),
	})
}
