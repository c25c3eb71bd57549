package http

// PresignRequest is the request body for POST /api/upload/presign.
type PresignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// PresignResponse is the response body for POST /api/upload/presign.
// Unsupported types answer with Success false and ReceivedType set.
type PresignResponse struct {
	Success      bool   `json:"success"`
	UploadURL    string `json:"uploadUrl,omitempty"`
	FileURL      string `json:"fileUrl,omitempty"`
	Message      string `json:"message,omitempty"`
	ReceivedType string `json:"receivedType,omitempty"`
}

// SubmitResponse is the response body for POST /api/upload/data.
type SubmitResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ChatRequest is the request body for POST /api/chat. JobID is accepted
// for client compatibility; answers draw on the whole index.
type ChatRequest struct {
	JobID    string `json:"jobId"`
	Question string `json:"question"`
}

// ChatResponse is the response body for POST /api/chat.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// HealthResponse is the response body for GET / and GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
