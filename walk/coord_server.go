package walk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	fchecker "randomwalk/fcheck"
	"randomwalk/util"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type CoordConfig = util.CoordConfig

// monitorSet tracks the heartbeat monitors started for joined walkers.
type monitorSet struct {
	mu      sync.Mutex
	cancels map[uint32]context.CancelFunc
	stopped bool
}

func newMonitorSet() *monitorSet {
	return &monitorSet{cancels: make(map[uint32]context.CancelFunc)}
}

// add returns false if the set is already shut down or the walker is
// already monitored.
func (m *monitorSet) add(walkerID uint32, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	if _, ok := m.cancels[walkerID]; ok {
		return false
	}
	m.cancels[walkerID] = cancel
	return true
}

func (m *monitorSet) stop(walkerID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[walkerID]; ok {
		cancel()
		delete(m.cancels, walkerID)
	}
}

func (m *monitorSet) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.stopped = true
}

// CoordServer is the network front end of a Coord: a gRPC service that feeds
// remote reports into the coordinator inbox, plus an optional HTTP status API.
type CoordServer struct {
	coord  *Coord
	config CoordConfig

	grpcServer *grpc.Server
	httpServer *http.Server
}

func NewCoordServer(coord *Coord, config CoordConfig) *CoordServer {
	s := &CoordServer{
		coord:      coord,
		config:     config,
		grpcServer: grpc.NewServer(),
	}
	RegisterCoordinatorServer(s.grpcServer, s)
	return s
}

func (s *CoordServer) checkWalkerID(ctx context.Context) (uint32, error) {
	walkerID, err := walkerIDFromContext(ctx)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, err.Error())
	}
	if walkerID == ControllerRank || int(walkerID) > s.coord.expected {
		return 0, status.Errorf(
			codes.InvalidArgument, "walker id %d outside 1..%d",
			walkerID, s.coord.expected,
		)
	}
	return walkerID, nil
}

func (s *CoordServer) ReportCompletion(
	ctx context.Context, steps *wrapperspb.Int64Value,
) (*emptypb.Empty, error) {
	walkerID, err := s.checkWalkerID(ctx)
	if err != nil {
		return nil, err
	}
	report := CompletionReport{WalkerID: walkerID, StepsTaken: int(steps.GetValue())}
	switch err := s.coord.accept(report); {
	case errors.Is(err, errAlreadyReported):
		return nil, status.Error(codes.AlreadyExists, err.Error())
	case err != nil:
		return nil, status.Errorf(
			codes.FailedPrecondition,
			"coordinator already heard from all %d walkers", s.coord.expected,
		)
	}
	return &emptypb.Empty{}, nil
}

// JoinWalker starts an advisory heartbeat monitor for the walker. A detected
// failure is logged and shown on the status board; the coordinator keeps
// waiting for that walker's report regardless.
func (s *CoordServer) JoinWalker(
	ctx context.Context, ackAddr *wrapperspb.StringValue,
) (*emptypb.Empty, error) {
	walkerID, err := s.checkWalkerID(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("JoinWalker: walker %d joined, heartbeat address %q\n", walkerID, ackAddr.GetValue())

	if ackAddr.GetValue() == "" || s.config.LostMsgsThresh == 0 {
		return &emptypb.Empty{}, nil
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	if !s.coord.monitors.add(walkerID, cancel) {
		cancel()
		return &emptypb.Empty{}, nil
	}

	host, _, err := net.SplitHostPort(s.config.WalkerAPIListenAddr)
	if err != nil {
		host = ""
	}
	notifyCh, err := fchecker.Monitor(monitorCtx, fchecker.MonitorConfig{
		HBeatLocalIPHBeatLocalPort:   net.JoinHostPort(host, "0"),
		HBeatRemoteIPHBeatRemotePort: ackAddr.GetValue(),
		EpochNonce:                   rand.Uint64(),
		LostMsgThresh:                s.config.LostMsgsThresh,
		ServerId:                     walkerID,
		RTT:                          s.config.HeartbeatRTT,
	})
	if err != nil {
		s.coord.monitors.stop(walkerID)
		log.Printf("JoinWalker: could not monitor walker %d: %v\n", walkerID, err)
		return &emptypb.Empty{}, nil
	}
	go s.watch(walkerID, notifyCh)
	return &emptypb.Empty{}, nil
}

func (s *CoordServer) watch(walkerID uint32, notifyCh <-chan fchecker.FailureDetected) {
	for notify := range notifyCh {
		log.Printf(
			"monitor: walker %d at %v suspected failed at %v, still waiting for its report\n",
			walkerID, notify.UDPIpPort, notify.Timestamp.Format(time.RFC3339),
		)
		s.coord.board.suspect(walkerID)
	}
}

// Serve accepts walker reports on lis until the coordinator has heard from
// every walker, then shuts the listeners down and returns the final tally.
func (s *CoordServer) Serve(lis net.Listener, statusLis net.Listener) (CompletionTally, error) {
	serveErr := make(chan error, 2)

	go func() {
		log.Printf("Serve: listening for walkers at %v\n", lis.Addr())
		if err := s.grpcServer.Serve(lis); err != nil {
			serveErr <- fmt.Errorf("walker API: %w", err)
		}
	}()

	if statusLis != nil {
		s.httpServer = &http.Server{
			Handler:           newStatusHandler(s.coord.board, s.grpcServer),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Serve: status API listening at %v\n", statusLis.Addr())
			if err := s.httpServer.Serve(statusLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("status API: %w", err)
			}
		}()
	}

	tally := s.coord.Wait()
	s.Stop()

	select {
	case err := <-serveErr:
		return tally, err
	default:
		return tally, nil
	}
}

func (s *CoordServer) Stop() {
	s.coord.monitors.stopAll()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Stop: status API shutdown: %v\n", err)
		}
	}
	s.grpcServer.GracefulStop()
}

// ListenAndServe opens the configured listeners and runs Serve.
func (s *CoordServer) ListenAndServe() (CompletionTally, error) {
	lis, err := net.Listen("tcp", s.config.WalkerAPIListenAddr)
	if err != nil {
		return CompletionTally{}, fmt.Errorf("listen for walkers on %v: %w", s.config.WalkerAPIListenAddr, err)
	}

	var statusLis net.Listener
	if s.config.StatusAPIListenAddr != "" {
		statusLis, err = net.Listen("tcp", s.config.StatusAPIListenAddr)
		if err != nil {
			lis.Close()
			return CompletionTally{}, fmt.Errorf("listen for status requests on %v: %w", s.config.StatusAPIListenAddr, err)
		}
	}
	return s.Serve(lis, statusLis)
}
