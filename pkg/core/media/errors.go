package media

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the generation API's file endpoints.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for throttling and transient server failures.
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var gerr geminiError
	if err := json.Unmarshal(body, &gerr); err != nil || gerr.Error.Message == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     gerr.Error.Status,
		Message:    gerr.Error.Message,
	}
}
