package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nitro41992/splitting-sucks/internal/apperr"
	"github.com/nitro41992/splitting-sucks/internal/media"
	"github.com/nitro41992/splitting-sucks/internal/operation"
)

// successEnvelope wraps every successful result
type successEnvelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// errorEnvelope wraps every failure
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type parseReceiptData struct {
	ImageData string `json:"imageData"`
	ImageURI  string `json:"imageUri"`
	MIMEType  string `json:"mimeType"`
}

type assignPeopleData struct {
	Transcription string          `json:"transcription"`
	ReceiptItems  json.RawMessage `json:"receipt_items"`
}

type transcribeAudioData struct {
	AudioData string `json:"audioData"`
	AudioURI  string `json:"audioUri"`
	MIMEType  string `json:"mimeType"`
}

// handleParseReceipt extracts the line items of a receipt image
func (s *Server) handleParseReceipt(w http.ResponseWriter, r *http.Request) {
	data, err := decodeData[parseReceiptData](w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := s.ops.ParseReceipt(r.Context(), operation.ParseReceiptRequest{
		Image: media.Input{Data: data.ImageData, URI: data.ImageURI, MIMEType: data.MIMEType},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successEnvelope{Data: doc})
}

// handleAssignPeople maps receipt items to the people named in a transcription
func (s *Server) handleAssignPeople(w http.ResponseWriter, r *http.Request) {
	data, err := decodeData[assignPeopleData](w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.ops.AssignPeople(r.Context(), operation.AssignmentRequest{
		Transcription: data.Transcription,
		ReceiptItems:  data.ReceiptItems,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successEnvelope{Data: result})
}

// handleTranscribeAudio converts an audio clip to text
func (s *Server) handleTranscribeAudio(w http.ResponseWriter, r *http.Request) {
	data, err := decodeData[transcribeAudioData](w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	transcript, err := s.ops.Transcribe(r.Context(), operation.TranscribeRequest{
		Audio: media.Input{Data: data.AudioData, URI: data.AudioURI, MIMEType: data.MIMEType},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successEnvelope{Data: transcript})
}

// handleHealthz reports liveness
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, successEnvelope{Data: map[string]string{
		"status":  "ok",
		"version": s.config.Version,
	}})
}

// handleNotFound answers any path without a route
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	slog.Warn("Rejected request", "path", r.URL.Path, "method", r.Method, "kind", apperr.KindRequestValidation)
	writeErrorStatus(w, http.StatusNotFound, fmt.Sprintf("%s: no route for %s %s", apperr.KindRequestValidation, r.Method, r.URL.Path))
}

// decodeData reads a {"data": {...}} body into T
func decodeData[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var envelope struct {
		Data *T `json:"data"`
	}
	var zero T

	body := http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return zero, apperr.New(apperr.KindRequestValidation, "request body exceeds %dMB", MaxBodySize>>20)
		case errors.Is(err, io.EOF):
			return zero, apperr.New(apperr.KindRequestValidation, "request body is empty")
		default:
			return zero, apperr.Wrap(apperr.KindRequestValidation, err, "request body is not valid JSON")
		}
	}

	if envelope.Data == nil {
		return zero, apperr.New(apperr.KindRequestValidation, `request body must contain a "data" object`)
	}
	return *envelope.Data, nil
}

// writeError writes the error envelope for err
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	env := apperr.EnvelopeFor(err)
	if env.HTTPStatus >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "kind", env.Kind, "error", err)
	} else {
		slog.Warn("Rejected request", "path", r.URL.Path, "kind", env.Kind, "error", err)
	}
	writeErrorStatus(w, env.HTTPStatus, env.Message)
}

func writeErrorStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Message: message, Status: status}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}
