package runway

import "time"

type referenceImage struct {
	URI string `json:"uri"`
	Tag string `json:"tag,omitempty"`
}

type contentModeration struct {
	PublicFigureThreshold string `json:"publicFigureThreshold"`
}

type textToImageRequest struct {
	PromptText        string             `json:"promptText"`
	Ratio             string             `json:"ratio"`
	Model             string             `json:"model"`
	Seed              *int               `json:"seed,omitempty"`
	ReferenceImages   []referenceImage   `json:"referenceImages,omitempty"`
	ContentModeration *contentModeration `json:"contentModeration,omitempty"`
}

type imageToVideoRequest struct {
	PromptImage string `json:"promptImage"`
	Model       string `json:"model"`
	Ratio       string `json:"ratio"`
	Seed        *int   `json:"seed,omitempty"`
	PromptText  string `json:"promptText,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

type videoUpscaleRequest struct {
	VideoURI string `json:"videoUri"`
	Model    string `json:"model"`
}

type taskResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Output      []string   `json:"output,omitempty"`
	Failure     string     `json:"failure,omitempty"`
	FailureCode string     `json:"failureCode,omitempty"`
}

// Organization is the account summary returned by GET /organization.
type Organization struct {
	CreditBalance int `json:"creditBalance"`
}
