package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"gemini-qa/internal/domain"
	"gemini-qa/internal/usecase"
)

type answerRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer     string               `json:"answer"`
	Transcript []domain.ChatMessage `json:"transcript"`
}

type imageResponse struct {
	Answer string `json:"answer"`
}

type transcriptResponse struct {
	Session    string               `json:"session"`
	Transcript []domain.ChatMessage `json:"transcript"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleAnswer is the non-streaming text path: the answer is collected before
// the response is written.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	var in answerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   string(usecase.ErrorMissingInput),
			Message: "Request body must be a JSON object.",
		})
		return
	}

	st, err := s.dispatcher.AnswerText(r.Context(), sess, in.Question)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	answer, err := st.Collect()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Answer: answer, Transcript: sess.Messages()})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:   string(usecase.ErrorMissingInput),
				Message: "The uploaded file is too large.",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   string(usecase.ErrorMissingInput),
			Message: "Please upload an image.",
		})
		return
	}

	data, err := readUpload(r)
	if err != nil {
		s.log.Warnw("read upload", "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   string(usecase.ErrorMissingInput),
			Message: "Please upload an image.",
		})
		return
	}

	answer, err := s.dispatcher.AnswerImage(r.Context(), r.FormValue("question"), data)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Answer: answer})
}

// readUpload returns the bytes of the "image" part, or nil when no file was
// attached.
func readUpload(r *http.Request) ([]byte, error) {
	f, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	writeJSON(w, http.StatusOK, transcriptResponse{Session: sess.ID(), Transcript: sess.Messages()})
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "code", usecase.CodeOf(err), "err", err)
	} else {
		s.log.Warnw("request rejected", "code", usecase.CodeOf(err), "err", err)
	}
	writeJSON(w, status, errorResponse{
		Error:   string(usecase.CodeOf(err)),
		Message: usecase.UserMessage(err),
	})
}

func statusFor(err error) int {
	switch usecase.CodeOf(err) {
	case usecase.ErrorMissingInput, usecase.ErrorDecodeFailure:
		return http.StatusBadRequest
	case usecase.ErrorGatewayFailure:
		if upstream, ok := usecase.UpstreamStatusCode(err); ok && upstream == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
