// Package web serves the odometry status API over HTTP.
package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"goji.io"
	"goji.io/pat"
	goutils "go.viam.com/utils"
	"google.golang.org/protobuf/encoding/protojson"

	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/protoutils"
)

// Odometer is what the API reads and resets.
type Odometer interface {
	Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error)
	Reset() error
	SetPose(x, y, theta float64) error
}

// Options configures a Server.
type Options struct {
	BindAddress string
	// CORSOrigins lists the allowed origins. Empty allows all.
	CORSOrigins []string
}

// Server is the HTTP API.
type Server struct {
	odometer Odometer
	options  Options
	handler  http.Handler
	logger   logging.Logger
}

// poseRequest is the optional body of a reset request.
type poseRequest struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta *float64 `json:"theta"`
}

// NewServer builds the routes for odometer.
func NewServer(odometer Odometer, options Options, logger logging.Logger) *Server {
	s := &Server{odometer: odometer, options: options, logger: logger}

	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/api/v1/odometry"), s.handleReadings)
	mux.HandleFunc(pat.Post("/api/v1/odometry/reset"), s.handleReset)

	corsHandler := cors.AllowAll()
	if len(options.CORSOrigins) > 0 {
		corsHandler = cors.New(cors.Options{
			AllowedOrigins: options.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		})
	}
	s.handler = corsHandler.Handler(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens on the bind address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.options.BindAddress)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.options.BindAddress)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on listener until ctx is done, then shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		errCh <- httpServer.Serve(listener)
	})
	s.logger.Infow("serving odometry api", "address", listener.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	s.writeReadings(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req poseRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decoding reset request"))
			return
		}
	}

	if req.X == nil && req.Y == nil && req.Theta == nil {
		err = s.odometer.Reset()
	} else {
		var x, y, theta float64
		if req.X != nil {
			x = *req.X
		}
		if req.Y != nil {
			y = *req.Y
		}
		if req.Theta != nil {
			theta = *req.Theta
		}
		err = s.odometer.SetPose(x, y, theta)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeReadings(w, r)
}

func (s *Server) writeReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.odometer.Readings(r.Context(), nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	msg, err := protoutils.ReadingsToStruct(readings)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out, err := protojson.Marshal(msg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(out); err != nil {
		s.logger.Debugw("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warnw("odometry api request failed", "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errchkjson
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
