package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"
	"i4.energy/across/simcom/at"
	"i4.energy/across/simcom/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance. The modem runs one command at a time, so every
// handler holds the server's semaphore while it talks to it.
type Server struct {
	Logger *slog.Logger
	Modem  *modem.Modem

	sem *semaphore.Weighted
	mux *http.ServeMux
}

func NewServer(logger *slog.Logger, m *modem.Modem) *Server {
	s := &Server{
		Logger: logger,
		Modem:  m,
		sem:    semaphore.NewWeighted(1),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /sms", s.handleSMS)
	s.mux.HandleFunc("POST /ussd", s.handleUSSD)
	s.mux.HandleFunc("POST /gprs", s.handleGprs)
	s.mux.HandleFunc("POST /connections", s.handleOpen)
	s.mux.HandleFunc("GET /connections/{mux}", s.handleConnectionStatus)
	s.mux.HandleFunc("DELETE /connections/{mux}", s.handleClose)
	s.mux.HandleFunc("POST /connections/{mux}/data", s.handleSend)
	s.mux.HandleFunc("GET /connections/{mux}/data", s.handleReceive)
	return s
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// exclusive runs fn while holding the modem.
func (s *Server) exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn(ctx)
}

// Close waits for the running request to release the modem and closes it.
func (s *Server) Close(ctx context.Context) error {
	return s.exclusive(ctx, func(context.Context) error {
		return s.Modem.Close()
	})
}

// BringUpGprs resets the IP stack, enables multi-connection mode with manual
// receive and attaches to apn. It returns the local address.
func (s *Server) BringUpGprs(ctx context.Context, apn, user, password string) (netip.Addr, error) {
	var ip netip.Addr
	err := s.exclusive(ctx, func(ctx context.Context) error {
		m := s.Modem
		if err := m.Shutdown(ctx); err != nil {
			return fmt.Errorf("shut down IP stack: %w", err)
		}
		if err := m.SetCipmux(ctx, true); err != nil {
			return fmt.Errorf("enable multi-connection mode: %w", err)
		}
		if err := m.SetManualReceive(ctx, true); err != nil {
			return fmt.Errorf("enable manual receive: %w", err)
		}
		if err := m.SetAPN(ctx, apn, user, password); err != nil {
			return fmt.Errorf("set APN: %w", err)
		}
		if err := m.AttachGprs(ctx); err != nil {
			return fmt.Errorf("attach GPRS: %w", err)
		}
		var err error
		ip, err = m.IPAddress(ctx)
		return err
	})
	return ip, err
}

// LogNotification logs an unsolicited line from the modem. Registration
// changes are logged with their decoded state.
func LogNotification(logger *slog.Logger, line string) {
	if payload, ok := strings.CutPrefix(line, at.UrcRegistration); ok {
		if state, ok := at.DecodeRegistrationNotification(strings.TrimSpace(payload)); ok {
			logger.Info("Registration changed", "state", state.String())
			return
		}
	}
	logger.Info("Unsolicited result", "line", line)
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
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// sendModemError maps engine errors to HTTP status codes.
func (s *Server) sendModemError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, modem.ErrInvalidMux),
		errors.Is(err, modem.ErrPayloadTooLarge),
		errors.Is(err, modem.ErrCommandTooLong),
		errors.Is(err, modem.ErrEmptyBuffer):
		status = http.StatusBadRequest
	case errors.Is(err, modem.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, modem.ErrCommandFailed):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	s.sendError(w, err.Error(), status)
}

func muxParam(r *http.Request) (int, error) {
	mux, err := strconv.Atoi(r.PathValue("mux"))
	if err != nil {
		return 0, fmt.Errorf("invalid connection index %q", r.PathValue("mux"))
	}
	return mux, nil
}

type StatusResponse struct {
	BaudRate      int    `json:"baud_rate"`
	Registration  string `json:"registration"`
	SignalQuality int    `json:"signal_quality"`
	Operator      string `json:"operator"`
	IMEI          string `json:"imei"`
	Garbage       bool   `json:"garbage"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse
	err := s.exclusive(r.Context(), func(ctx context.Context) error {
		m := s.Modem
		reg, err := m.RegistrationStatus(ctx)
		if err != nil {
			return err
		}
		resp.Registration = reg.String()
		if resp.SignalQuality, err = m.SignalQuality(ctx); err != nil {
			return err
		}
		if resp.Operator, err = m.OperatorName(ctx, false); err != nil {
			return err
		}
		if resp.IMEI, err = m.IMEI(ctx); err != nil {
			return err
		}
		resp.BaudRate = m.BaudRate()
		resp.Garbage = m.GarbageDetected()
		return nil
	})
	if err != nil {
		s.Logger.Error("Failed to query status", "error", err)
		s.sendModemError(w, err)
		return
	}
	s.sendJSON(w, resp)
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	err := s.exclusive(r.Context(), func(ctx context.Context) error {
		if err := s.Modem.SetSMSTextMode(ctx); err != nil {
			return err
		}
		return s.Modem.SendSMS(ctx, req.To, req.Message)
	})
	if err != nil {
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		s.sendModemError(w, err)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUSSD(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		s.sendError(w, "'code' field is required", http.StatusBadRequest)
		return
	}

	var resp at.UssdResponse
	err := s.exclusive(r.Context(), func(ctx context.Context) (err error) {
		resp, err = s.Modem.SendUSSD(ctx, req.Code)
		return err
	})
	if err != nil {
		s.Logger.Error("USSD request failed", "error", err, "code", req.Code)
		s.sendModemError(w, err)
		return
	}
	s.sendJSON(w, map[string]any{
		"status": resp.Status,
		"text":   resp.Text,
		"scheme": resp.Scheme,
	})
}

func (s *Server) handleGprs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APN      string `json:"apn"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.APN == "" {
		s.sendError(w, "'apn' field is required", http.StatusBadRequest)
		return
	}

	ip, err := s.BringUpGprs(r.Context(), req.APN, req.Username, req.Password)
	if err != nil {
		s.Logger.Error("Failed to bring up GPRS", "error", err, "apn", req.APN)
		s.sendModemError(w, err)
		return
	}
	s.Logger.Info("GPRS up", "apn", req.APN, "ip", ip)
	s.sendJSON(w, map[string]string{"ip": ip.String()})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Protocol string `json:"protocol"`
		Mux      int    `json:"mux"`
		Address  string `json:"address"`
		Port     int    `json:"port"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	proto, ok := at.ParseProtocol(req.Protocol)
	if !ok {
		s.sendError(w, "'protocol' must be TCP or UDP", http.StatusBadRequest)
		return
	}
	if req.Address == "" || req.Port <= 0 || req.Port > 65535 {
		s.sendError(w, "'address' and a valid 'port' are required", http.StatusBadRequest)
		return
	}

	err := s.exclusive(r.Context(), func(ctx context.Context) error {
		return s.Modem.OpenConnection(ctx, proto, req.Mux, req.Address, req.Port)
	})
	if err != nil {
		s.Logger.Error("Failed to open connection", "error", err, "mux", req.Mux, "address", req.Address)
		s.sendModemError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	mux, err := muxParam(r)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var info at.ConnectionInfo
	err = s.exclusive(r.Context(), func(ctx context.Context) (err error) {
		info, err = s.Modem.ConnectionStatus(ctx, mux)
		return err
	})
	if err != nil {
		s.sendModemError(w, err)
		return
	}
	s.sendJSON(w, map[string]any{
		"mux":      info.Mux,
		"protocol": info.Protocol.String(),
		"address":  info.Address,
		"port":     info.Port,
		"state":    info.State.String(),
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	mux, err := muxParam(r)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.exclusive(r.Context(), func(ctx context.Context) error {
		return s.Modem.CloseConnection(ctx, mux)
	})
	if err != nil {
		s.sendModemError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	mux, err := muxParam(r)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, modem.MaxSendSize+1))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.exclusive(r.Context(), func(ctx context.Context) error {
		return s.Modem.SendData(ctx, mux, data)
	})
	if err != nil {
		s.Logger.Error("Failed to send data", "error", err, "mux", mux, "bytes", len(data))
		s.sendModemError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	mux, err := muxParam(r)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	size := modem.MaxReceiveSize
	if v := r.URL.Query().Get("size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size <= 0 || size > modem.MaxReceiveSize {
			s.sendError(w, fmt.Sprintf("'size' must be 1..%d", modem.MaxReceiveSize), http.StatusBadRequest)
			return
		}
	}

	buf := make([]byte, size)
	var n int
	err = s.exclusive(r.Context(), func(ctx context.Context) (err error) {
		n, err = s.Modem.ReceiveData(ctx, mux, buf)
		return err
	})
	if err != nil {
		s.sendModemError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(buf[:n])
}
