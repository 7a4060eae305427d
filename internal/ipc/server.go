package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"nfckeyboard/internal/daemon"
	"nfckeyboard/internal/logging"
)

// ServiceName prefixes every RPC method.
const ServiceName = "NFCKeyboard"

// Controller is the daemon surface exposed over the socket.
type Controller interface {
	Status() daemon.Status
	Pause() bool
	Resume() bool
	Stop()
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path. Any existing
// socket file is replaced, so callers must hold the instance lock first.
func NewServer(ctx context.Context, path string, ctl Controller, logger *slog.Logger) (*Server, error) {
	if ctl == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{ctl: ctl, logger: logger}); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting RPC connections until Close is called or the context
// is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart nfckeyboard if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// Close stops the server, drops open client connections and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale socket file left in the state directory"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	ctl    Controller
	logger *slog.Logger
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = FromDaemonStatus(s.ctl.Status())
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	resp.Changed = s.ctl.Pause()
	resp.Paused = true
	s.logger.Debug("pause requested", logging.Bool("changed", resp.Changed))
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	resp.Changed = s.ctl.Resume()
	resp.Paused = false
	s.logger.Debug("resume requested", logging.Bool("changed", resp.Changed))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("stop requested via IPC", logging.String(logging.FieldEventType, "ipc_stop"))
	// Stopping tears down this server too; reply before that happens.
	go s.ctl.Stop()
	resp.Stopping = true
	return nil
}

// FromDaemonStatus converts a daemon status into its wire form.
func FromDaemonStatus(status daemon.Status) StatusResponse {
	resp := StatusResponse{
		Running:    status.Running,
		Paused:     status.Paused,
		PID:        status.PID,
		StartedAt:  status.StartedAt,
		Reader:     status.Reader,
		LockPath:   status.LockPath,
		LockMode:   status.LockMode,
		LogPath:    status.LogPath,
		Beep:       status.Beep,
		BeepDetail: status.BeepDetail,
		Hotplug:    status.Hotplug,
		Watcher: WatcherStatus{
			State:            status.Watcher.State.String(),
			SessionID:        status.Watcher.SessionID,
			Sessions:         status.Watcher.Sessions,
			Dispatches:       status.Watcher.Dispatches,
			ReadFailures:     status.Watcher.ReadFailures,
			DispatchFailures: status.Watcher.DispatchFailures,
			LastDispatch:     status.Watcher.LastDispatch,
		},
	}
	if len(status.Dependencies) > 0 {
		resp.Dependencies = make([]DependencyStatus, 0, len(status.Dependencies))
		for _, dep := range status.Dependencies {
			resp.Dependencies = append(resp.Dependencies, DependencyStatus{
				Name:        dep.Name,
				Command:     dep.Command,
				Description: dep.Description,
				Optional:    dep.Optional,
				Available:   dep.Available,
				Detail:      dep.Detail,
			})
		}
	}
	return resp
}
