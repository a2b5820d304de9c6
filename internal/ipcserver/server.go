// Package ipcserver runs the commander side of the IPC channel: binds the
// transport, accepts worker connections, and pumps decoded messages into a
// single bounded inbound channel.
package ipcserver

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcproto"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipctransport"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
)

// InboundChannelSize is the default bound on the server's inbound message
// channel (spec §5 Backpressure).
const InboundChannelSize = 100

// Envelope pairs a decoded worker message with the worker id that sent it.
type Envelope struct {
	WorkerID string
	Message  ipcproto.WorkerMessage
}

type connectedWorker struct {
	mu     sync.Mutex
	writer *bufio.Writer
	conn   ipctransport.Stream
}

func (w *connectedWorker) send(msg ipcproto.CommanderMessage) error {
	data, err := ipcproto.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	return w.writer.Flush()
}

// Server is the commander's IPC endpoint.
type Server struct {
	socketPath string
	log        *logging.Logger

	mu       sync.RWMutex
	listener ipctransport.Listener
	workers  map[string]*connectedWorker

	inbound chan Envelope
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a server bound to the given socket path. Call Start to begin
// accepting connections.
func New(socketPath string, log *logging.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		log:        log,
		workers:    make(map[string]*connectedWorker),
		inbound:    make(chan Envelope, InboundChannelSize),
	}
}

// SocketPath returns the endpoint this server binds to.
func (s *Server) SocketPath() string { return s.socketPath }

// Start binds the transport listener. It does not block; call AcceptLoop in
// its own goroutine to begin serving connections.
func (s *Server) Start() error {
	l, err := ipctransport.Bind(s.socketPath)
	if err != nil {
		return core.ErrSpawnFailed("binding IPC listener", err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	s.ctx = gctx
	return nil
}

// Stop closes the listener, drops all connected workers, and removes the
// socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	l := s.listener
	s.listener = nil
	s.workers = make(map[string]*connectedWorker)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if l != nil {
		err = l.Close()
	}
	ipctransport.Cleanup(s.socketPath)
	return err
}

// AcceptLoop accepts connections until the listener is closed. Each
// connection must open with a handshake frame; anything else is rejected.
// Run this in its own goroutine after Start.
func (s *Server) AcceptLoop() error {
	for {
		s.mu.RLock()
		l := s.listener
		s.mu.RUnlock()
		if l == nil {
			return nil
		}

		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
				return err
			}
		}

		if _, err := s.accept(conn); err != nil {
			s.log.Error("rejecting worker connection", "error", err)
			_ = conn.Close()
		}
	}
}

// accept reads the handshake frame off conn, registers the worker, and
// spawns its reader goroutine. Returns the worker id.
func (s *Server) accept(conn ipctransport.Stream) (string, error) {
	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return "", fmt.Errorf("reading handshake: %w", err)
	}

	msg, err := ipcproto.DecodeWorkerMessage(line)
	if err != nil {
		return "", core.ErrInvalidMessage("malformed handshake", err)
	}
	handshake, ok := msg.(*ipcproto.Handshake)
	if !ok {
		return "", core.ErrInvalidMessage(fmt.Sprintf("expected handshake, got %s", msg.Kind()), nil)
	}

	worker := &connectedWorker{writer: bufio.NewWriter(conn), conn: conn}
	s.mu.Lock()
	s.workers[handshake.WorkerID] = worker
	s.mu.Unlock()

	// Blocks if the inbound channel is full; this is the backpressure point
	// described in spec §5.
	s.inbound <- Envelope{WorkerID: handshake.WorkerID, Message: handshake}

	s.group.Go(func() error {
		s.readWorkerMessages(reader, handshake.WorkerID, conn)
		return nil
	})

	return handshake.WorkerID, nil
}

// readWorkerMessages pumps subsequent frames from one worker connection
// into the shared inbound channel until EOF or an unrecoverable read error.
// Malformed lines are logged and dropped; they never close the connection
// (spec §4.5 Framing).
func (s *Server) readWorkerMessages(reader *bufio.Reader, workerID string, conn ipctransport.Stream) {
	defer func() {
		s.mu.Lock()
		delete(s.workers, workerID)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			msg, decodeErr := ipcproto.DecodeWorkerMessage(line)
			if decodeErr != nil {
				s.log.Warn("dropping malformed frame", "worker_id", workerID, "error", decodeErr)
			} else {
				select {
				case s.inbound <- Envelope{WorkerID: workerID, Message: msg}:
				case <-s.ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if err.Error() != "EOF" {
				s.log.Info("worker disconnected", "worker_id", workerID, "error", err)
			} else {
				s.log.Info("worker disconnected", "worker_id", workerID)
			}
			return
		}
	}
}

// Inbound returns the channel of decoded worker messages. There is a single
// logical consumer (the commander's process_messages loop).
func (s *Server) Inbound() <-chan Envelope { return s.inbound }

// Send delivers msg to a specific worker. Returns core.ErrWorkerNotConnected
// if the worker has no live connection.
func (s *Server) Send(workerID string, msg ipcproto.CommanderMessage) error {
	s.mu.RLock()
	w, ok := s.workers[workerID]
	s.mu.RUnlock()
	if !ok {
		return core.ErrWorkerNotConnected(workerID)
	}
	return w.send(msg)
}

// Broadcast sends msg to every connected worker, logging (not aborting) on
// individual failures, and always returns nil.
func (s *Server) Broadcast(msg ipcproto.CommanderMessage) error {
	s.mu.RLock()
	workers := make(map[string]*connectedWorker, len(s.workers))
	for id, w := range s.workers {
		workers[id] = w
	}
	s.mu.RUnlock()

	for id, w := range workers {
		if err := w.send(msg); err != nil {
			s.log.Warn("broadcast send failed", "worker_id", id, "error", err)
		}
	}
	return nil
}

// IsConnected reports whether a worker currently has a live connection.
func (s *Server) IsConnected(workerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workers[workerID]
	return ok
}

// ConnectedWorkers returns the ids of all currently connected workers.
func (s *Server) ConnectedWorkers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	return ids
}

// Disconnect drops the server's record of a worker's connection without
// closing the socket explicitly; the reader goroutine's own EOF handling
// reaps the underlying conn.
func (s *Server) Disconnect(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, workerID)
}
