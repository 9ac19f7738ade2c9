package handlers

import (
	"net/http"

	"github.com/vango-go/vai-duet/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not_found", "not found", "")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, typ, message, param string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	mw.WriteJSONError(w, status, &mw.APIError{Type: typ, Message: message, Param: param, RequestID: reqID})
}
