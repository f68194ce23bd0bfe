package api

import (
	"time"

	"github.com/phrazzld/genflow/internal/domain"
)

// ReferenceImageRequest is an image a text-to-image generation conditions on.
type ReferenceImageRequest struct {
	URI string `json:"uri" validate:"required,url"`
	Tag string `json:"tag" validate:"omitempty,max=16"`
}

// TextToImageRequest is the body of POST /api/generations/text-to-image.
type TextToImageRequest struct {
	PromptText      string                  `json:"prompt_text"      validate:"required,max=1000"`
	Ratio           string                  `json:"ratio"            validate:"omitempty,max=16"`
	Model           string                  `json:"model"            validate:"omitempty,max=64"`
	Seed            *int                    `json:"seed"             validate:"omitempty,gte=0,lte=4294967295"`
	ReferenceImages []ReferenceImageRequest `json:"reference_images" validate:"omitempty,max=3,dive"`
}

// ImageToVideoRequest is the body of POST /api/generations/image-to-video.
type ImageToVideoRequest struct {
	PromptImage string `json:"prompt_image" validate:"required,url"`
	PromptText  string `json:"prompt_text"  validate:"omitempty,max=1000"`
	Ratio       string `json:"ratio"        validate:"omitempty,max=16"`
	Model       string `json:"model"        validate:"omitempty,max=64"`
	Duration    int    `json:"duration"     validate:"omitempty,oneof=5 10"`
	Seed        *int   `json:"seed"         validate:"omitempty,gte=0,lte=4294967295"`
}

// VideoUpscaleRequest is the body of POST /api/generations/video-upscale.
type VideoUpscaleRequest struct {
	VideoURI string `json:"video_uri" validate:"required,url"`
	Model    string `json:"model"     validate:"omitempty,max=64"`
}

// SubmitResponse acknowledges an accepted generation.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// JobResponse is the client view of a job.
type JobResponse struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	Kind          string     `json:"kind"`
	Prompt        string     `json:"prompt,omitempty"`
	Status        string     `json:"status"`
	OutputURLs    []string   `json:"output_urls"`
	Cost          int        `json:"cost"`
	FailureReason string     `json:"failure_reason,omitempty"`
	FailureCode   string     `json:"failure_code,omitempty"`
	FinalizedAt   *time.Time `json:"finalized_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// JobListResponse is a page of jobs.
type JobListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func jobToResponse(job *domain.Job) JobResponse {
	outputs := job.OutputURLs
	if outputs == nil {
		outputs = []string{}
	}
	return JobResponse{
		ID:            job.ID.String(),
		TaskID:        job.TaskID,
		Kind:          string(job.Kind),
		Prompt:        job.Prompt,
		Status:        string(job.Status),
		OutputURLs:    outputs,
		Cost:          job.Cost,
		FailureReason: job.FailureReason,
		FailureCode:   job.FailureCode,
		FinalizedAt:   job.FinalizedAt,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}
