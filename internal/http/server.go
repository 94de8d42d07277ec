package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
)

// Server envuelve http.Server con timeouts y apagado ordenado.
type Server struct {
	srv *http.Server
}

// NewServer crea el server sobre handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// El callback puede esperar el access token hasta el timeout del backchannel.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}}
}

// Run sirve hasta que ctx se cancele y luego apaga con un margen de 15s.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("http server listening", logger.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.L().Info("http server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
