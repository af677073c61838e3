package models

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Prompt      string `json:"prompt" binding:"required"`
	AccessToken string `json:"accessToken" binding:"required"`
}
