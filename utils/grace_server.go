package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Minute // ZIP exports stream in one response
	shutdownTimeout     = 30 * time.Second
	gracefulEnvKey      = "IS_GRACEFUL"
	gracefulEnvValue    = gracefulEnvKey + "=1"
	gracefulListenerFD  = 3
)

// Server wraps http.Server to support graceful shutdown and restart.
type Server struct {
	*http.Server

	listener     net.Listener
	isGraceful   bool
	logger       *zap.Logger
	signalChan   chan os.Signal
	shutdownChan chan struct{}
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
		},
		isGraceful:   os.Getenv(gracefulEnvKey) != "",
		logger:       logger,
		signalChan:   make(chan os.Signal, 1),
		shutdownChan: make(chan struct{}),
	}
}

// ListenAndServe serves until SIGTERM/SIGINT or ctx cancellation, then drains connections.
func (srv *Server) ListenAndServe(ctx context.Context) error {
	ln, err := srv.getNetListener(srv.Addr)
	if err != nil {
		return err
	}
	srv.listener = ln
	go srv.handleSignals(ctx)
	err = srv.Server.Serve(srv.listener)
	<-srv.shutdownChan
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (srv *Server) getNetListener(addr string) (net.Listener, error) {
	if srv.isGraceful {
		file := os.NewFile(gracefulListenerFD, "")
		ln, err := net.FileListener(file)
		if err != nil {
			return nil, fmt.Errorf("net.FileListener error: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Listen error: %w", err)
	}
	return ln, nil
}

func (srv *Server) handleSignals(ctx context.Context) {
	signal.Notify(srv.signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	defer signal.Stop(srv.signalChan)

	for {
		select {
		case <-ctx.Done():
			srv.logger.Info("context cancelled, shutting down HTTP server")
			srv.shutdownHTTPServer()
			return
		case sig := <-srv.signalChan:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				srv.logger.Info("received signal, graceful shutting down HTTP server", zap.String("signal", sig.String()))
				srv.shutdownHTTPServer()
				return
			case syscall.SIGUSR2:
				srv.logger.Info("received SIGUSR2, graceful restarting HTTP server")
				pid, err := srv.startNewProcess()
				if err != nil {
					srv.logger.Error("start new process failed, continue serving", zap.Error(err))
					continue
				}
				srv.logger.Info("new process started, closing old HTTP server", zap.Int("pid", pid))
				srv.shutdownHTTPServer()
				return
			}
		}
	}
}

func (srv *Server) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		srv.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		srv.logger.Info("HTTP server shutdown success")
	}
	close(srv.shutdownChan)
}

// startNewProcess re-executes the binary and hands it the listening socket.
func (srv *Server) startNewProcess() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is not *net.TCPListener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("get listener file: %w", err)
	}

	envs := []string{}
	for _, e := range os.Environ() {
		if e != gracefulEnvValue {
			envs = append(envs, e)
		}
	}
	envs = append(envs, gracefulEnvValue)

	attr := &syscall.ProcAttr{
		Env:   envs,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	}
	pid, err := syscall.ForkExec(os.Args[0], os.Args, attr)
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}

// GraceServer starts an HTTP server with graceful capabilities.
func GraceServer(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	return NewServer(addr, handler, logger).ListenAndServe(ctx)
}
