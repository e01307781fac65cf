package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/gpio-leds/internal/led"
	"github.com/sweeney/gpio-leds/internal/status"
)

// maxBody bounds API request bodies.
const maxBody = 4 << 10

// LEDsResponse is the body of GET /api/leds.
type LEDsResponse struct {
	LEDs []status.LEDJSON `json:"leds"`
}

// BrightnessRequest is the body of PUT /api/leds/{name}/brightness.
type BrightnessRequest struct {
	Brightness *int `json:"brightness"`
}

// ErrorResponse is returned with every non-2xx API status.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleListLEDs(w http.ResponseWriter, r *http.Request) {
	states := s.leds.States()
	resp := LEDsResponse{LEDs: make([]status.LEDJSON, len(states))}
	for i, st := range states {
		resp.LEDs[i] = status.NewLEDJSON(st)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLED(w http.ResponseWriter, r *http.Request) {
	st, err := s.leds.State(chi.URLParam(r, "name"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status.NewLEDJSON(st))
}

func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req BrightnessRequest
	if err := decodeBody(r, &req); err != nil {
		s.handleError(w, err)
		return
	}
	if req.Brightness == nil {
		s.handleError(w, fmt.Errorf("%w: missing brightness", led.ErrInvalidCommand))
		return
	}
	b, err := led.ParseBrightness(*req.Brightness)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.leds.SetBrightness(name, b); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeState(w, name)
}

func (s *Server) handleSetBlink(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var cmd led.BlinkCommand
	if err := decodeBody(r, &cmd); err != nil {
		s.handleError(w, err)
		return
	}
	if err := cmd.Apply(s.leds, name); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeState(w, name)
}

func (s *Server) writeState(w http.ResponseWriter, name string) {
	st, err := s.leds.State(name)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status.NewLEDJSON(st))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", led.ErrInvalidCommand, err)
	}
	return nil
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, led.ErrUnknownLED):
		code = http.StatusNotFound
	case errors.Is(err, led.ErrInvalidCommand):
		code = http.StatusBadRequest
	default:
		s.log.Warn("api request failed", "error", err)
	}
	writeJSON(w, code, ErrorResponse{Status: "error", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
