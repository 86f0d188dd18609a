package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/SujithChristopher/gdserial/frame"
	"github.com/SujithChristopher/gdserial/serial"
)

// Server handles incoming HTTP requests for interacting with the
// managed serial ports
type Server struct {
	Logger      *slog.Logger
	Manager     *serial.Manager
	DefaultBaud int
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ports", s.handleListPorts)
	mux.HandleFunc("POST /ports/open", s.handleOpenPort)
	mux.HandleFunc("POST /ports/close", s.handleClosePort)
	mux.HandleFunc("POST /ports/write", s.handleWritePort)
	mux.HandleFunc("POST /ports/delimiter", s.handleSetDelimiter)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)

}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleListPorts enumerates the serial devices on the system and marks
// the ones currently held open by the manager
func (s *Server) handleListPorts(w http.ResponseWriter, r *http.Request) {
	infos, err := serial.ListPorts()
	if err != nil {
		s.Logger.Error("Failed to list ports", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type PortResponse struct {
		serial.PortInfo
		Open bool `json:"open"`
	}
	resp := make([]PortResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, PortResponse{PortInfo: info, Open: s.Manager.IsOpen(info.Name)})
	}
	s.sendJSON(w, resp)
}

// handleOpenPort opens a device and starts its background reader
func (s *Server) handleOpenPort(w http.ResponseWriter, r *http.Request) {
	type OpenRequest struct {
		Port      string `json:"port"`
		Baud      int    `json:"baud"`
		TimeoutMS int    `json:"timeout_ms"`
		Mode      int    `json:"mode"`
		Delimiter string `json:"delimiter"`
	}

	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Port == "" {
		s.sendError(w, "'port' field is required", http.StatusBadRequest)
		return
	}

	baud := req.Baud
	if baud == 0 {
		baud = s.DefaultBaud
	}
	mode := frame.ModeFromInt(req.Mode)
	if mode.Kind == frame.Delim && len(req.Delimiter) == 1 {
		mode = frame.ModeDelim(req.Delimiter[0])
	}

	if !s.Manager.OpenPort(req.Port, baud, time.Duration(req.TimeoutMS)*time.Millisecond, mode) {
		s.sendError(w, "failed to open port", http.StatusInternalServerError)
		return
	}
	s.Logger.Info("Port opened", "port", req.Port, "baud", baud)
	w.WriteHeader(http.StatusOK)
}

// handleClosePort stops a port's reader and releases the device
func (s *Server) handleClosePort(w http.ResponseWriter, r *http.Request) {
	type CloseRequest struct {
		Port string `json:"port"`
	}

	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Port == "" {
		s.sendError(w, "'port' field is required", http.StatusBadRequest)
		return
	}

	s.Manager.ClosePort(req.Port)
	w.WriteHeader(http.StatusOK)
}

// handleWritePort writes the request payload to an open port
func (s *Server) handleWritePort(w http.ResponseWriter, r *http.Request) {
	type WriteRequest struct {
		Port string `json:"port"`
		Data string `json:"data"`
	}

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Port == "" || req.Data == "" {
		s.sendError(w, "both 'port' and 'data' fields are required", http.StatusBadRequest)
		return
	}

	if !s.Manager.WritePort(req.Port, []byte(req.Data)) {
		s.sendError(w, "failed to write to port", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleSetDelimiter switches an open port to custom-delimiter framing
func (s *Server) handleSetDelimiter(w http.ResponseWriter, r *http.Request) {
	type DelimiterRequest struct {
		Port      string `json:"port"`
		Delimiter string `json:"delimiter"`
	}

	var req DelimiterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Port == "" || len(req.Delimiter) != 1 {
		s.sendError(w, "'port' and a single-byte 'delimiter' are required", http.StatusBadRequest)
		return
	}

	if !s.Manager.SetDelimiter(req.Port, req.Delimiter[0]) {
		s.sendError(w, "port is not open", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleEvents drains the queued events from all ports and returns them
// in arrival order. Disconnected ports are reclaimed during the drain.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.Manager.PollEvents()
	if events == nil {
		events = []serial.Event{}
	}
	s.sendJSON(w, events)
}
