package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/vizchat/internal/pyexec"
	"github.com/MikeSquared-Agency/vizchat/internal/viz"
)

const (
	genericFailure = "An error occurred while processing your request."
	busyFailure    = "The server is busy. Please try again shortly."
)

// maxChatBody bounds the conversation a client may post.
const maxChatBody = 1 << 20

type ChatRequest struct {
	Messages viz.Conversation `json:"messages"`
}

// chat handles POST /api/chat
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	reply, err := s.responder.Respond(r.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, viz.ErrInvalidConversation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, pyexec.ErrBusy) {
			s.logger.Warn("chat turn rejected, interpreters saturated",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
			writeError(w, http.StatusServiceUnavailable, busyFailure)
			return
		}
		s.logger.Error("chat turn failed",
			"request_id", middleware.GetReqID(r.Context()),
			"messages", len(req.Messages),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, genericFailure)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}
