package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/runtimepath"
)

// Daemon is the surface the IPC server exposes.
type Daemon interface {
	Status() StatusData
	Statistics() engine.Statistics
	Rules() []RuleInfo
	Windows() []engine.Window
	Reload() (ReloadData, error)
	SetRuleEnabled(name string, enabled bool) error
	ClearStatistics()
}

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	daemon       Daemon
	logger       *zap.Logger
	conns        sync.WaitGroup
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(d Daemon, logger *zap.Logger) (*Server, error) {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		daemon:     d,
		logger:     logger,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", zap.String("socket", s.socketPath))

	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", zap.Error(err))
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("IPC read error", zap.Error(err))
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal IPC response", zap.Error(err))
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Debug("failed to send IPC response", zap.Error(err))
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandReload:
		return s.handleReload()
	case CommandGetStatus:
		return ok(s.daemon.Status())
	case CommandGetStats:
		return ok(s.daemon.Statistics())
	case CommandClearStats:
		s.daemon.ClearStatistics()
		s.logger.Info("IPC: statistics cleared")
		return ok(nil)
	case CommandListRules:
		return ok(RulesData{Rules: s.daemon.Rules()})
	case CommandListWindows:
		return ok(WindowsData{Windows: s.daemon.Windows()})
	case CommandSetRuleEnabled:
		return s.handleSetRuleEnabled(req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleReload() *Response {
	s.logger.Info("IPC: received RELOAD command")

	data, err := s.daemon.Reload()
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
	}
	return ok(data)
}

func (s *Server) handleSetRuleEnabled(payload json.RawMessage) *Response {
	var req SetRuleEnabledPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid payload: %v", err))
	}
	if req.Name == "" {
		return NewErrorResponse("name is required")
	}
	if err := s.daemon.SetRuleEnabled(req.Name, req.Enabled); err != nil {
		return NewErrorResponse(err.Error())
	}
	s.logger.Info("IPC: rule toggled", zap.String("rule", req.Name), zap.Bool("enabled", req.Enabled))
	return ok(nil)
}

func ok(data any) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	os.Remove(s.socketPath)
}
