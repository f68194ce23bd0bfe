package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/remote"
	"github.com/phrazzld/genflow/internal/service"
)

// GenerationService is the subset of *service.GenerationService the
// handlers use.
type GenerationService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*domain.Job, error)
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*domain.Job, error)
	ListJobs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Job, error)
	Cancel(ctx context.Context, userID, jobID uuid.UUID) (*domain.Job, error)
}

// GenerationHandler serves the generation and job endpoints.
type GenerationHandler struct {
	svc    GenerationService
	logger *slog.Logger
}

// NewGenerationHandler creates a GenerationHandler.
func NewGenerationHandler(svc GenerationService, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{
		svc:    svc,
		logger: logger.With("component", "generation_handler"),
	}
}

// TextToImage handles POST /api/generations/text-to-image.
func (h *GenerationHandler) TextToImage(w http.ResponseWriter, r *http.Request) {
	var req TextToImageRequest
	if !h.decode(w, r, &req) {
		return
	}

	refs := make([]remote.ReferenceImage, 0, len(req.ReferenceImages))
	for _, ref := range req.ReferenceImages {
		refs = append(refs, remote.ReferenceImage{URI: ref.URI, Tag: ref.Tag})
	}

	h.submit(w, r, service.SubmitRequest{
		Kind:            domain.TaskKindTextToImage,
		Prompt:          req.PromptText,
		Model:           req.Model,
		Ratio:           req.Ratio,
		Seed:            req.Seed,
		ReferenceImages: refs,
	})
}

// ImageToVideo handles POST /api/generations/image-to-video.
func (h *GenerationHandler) ImageToVideo(w http.ResponseWriter, r *http.Request) {
	var req ImageToVideoRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.submit(w, r, service.SubmitRequest{
		Kind:        domain.TaskKindImageToVideo,
		Prompt:      req.PromptText,
		PromptImage: req.PromptImage,
		Model:       req.Model,
		Ratio:       req.Ratio,
		Duration:    req.Duration,
		Seed:        req.Seed,
	})
}

// VideoUpscale handles POST /api/generations/video-upscale.
func (h *GenerationHandler) VideoUpscale(w http.ResponseWriter, r *http.Request) {
	var req VideoUpscaleRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.submit(w, r, service.SubmitRequest{
		Kind:     domain.TaskKindVideoUpscale,
		VideoURI: req.VideoURI,
		Model:    req.Model,
	})
}

// ListJobs handles GET /api/jobs?limit=&offset=.
func (h *GenerationHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", service.DefaultPageSize)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid offset")
		return
	}
	limit = min(max(limit, 1), service.MaxPageSize)

	jobs, err := h.svc.ListJobs(r.Context(), userID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list jobs")
		return
	}

	resp := JobListResponse{
		Jobs:   make([]JobResponse, 0, len(jobs)),
		Limit:  limit,
		Offset: offset,
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, jobToResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetJob handles GET /api/jobs/{id}.
func (h *GenerationHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.svc.GetJob(r.Context(), userID, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// CancelJob handles POST /api/jobs/{id}/cancel. The reply is 202: the job
// becomes CANCELLED once the poller observes the remote cancellation.
func (h *GenerationHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	jobID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.svc.Cancel(r.Context(), userID, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

func (h *GenerationHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := shared.DecodeJSON(r, dst); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(dst); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return false
	}
	return true
}

// submit fills in the caller and forwards req to the service. Generation is
// asynchronous, so success is 202 with the ids to poll.
func (h *GenerationHandler) submit(w http.ResponseWriter, r *http.Request, req service.SubmitRequest) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req.UserID = userID

	job, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.logger.DebugContext(r.Context(), "generation accepted",
		"job_id", job.ID,
		"task_id", job.TaskID,
		"kind", job.Kind)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{
		JobID:  job.ID.String(),
		TaskID: job.TaskID,
		Status: string(job.Status),
	})
}
