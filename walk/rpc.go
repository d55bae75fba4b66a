package walk

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The coordinator service carries a single integer per report. The sending
// walker's rank travels in request metadata, not in the payload.
const (
	coordinatorServiceName = "randomwalk.Coordinator"
	reportCompletionMethod = "/" + coordinatorServiceName + "/ReportCompletion"
	joinWalkerMethod       = "/" + coordinatorServiceName + "/JoinWalker"

	walkerIDKey = "walker-id"
)

// CoordinatorServer is implemented by the coordinator's gRPC front end.
type CoordinatorServer interface {
	// ReportCompletion takes the walker's steps taken.
	ReportCompletion(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)
	// JoinWalker takes the walker's heartbeat ack address.
	JoinWalker(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

func RegisterCoordinatorServer(s *grpc.Server, srv CoordinatorServer) {
	s.RegisterService(&coordinatorServiceDesc, srv)
}

func reportCompletionHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).ReportCompletion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: reportCompletionMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CoordinatorServer).ReportCompletion(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func joinWalkerHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).JoinWalker(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: joinWalkerMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CoordinatorServer).JoinWalker(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: coordinatorServiceName,
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReportCompletion", Handler: reportCompletionHandler},
		{MethodName: "JoinWalker", Handler: joinWalkerHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "randomwalk/coordinator",
}

func walkerIDFromContext(ctx context.Context) (uint32, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, fmt.Errorf("missing request metadata")
	}
	values := md.Get(walkerIDKey)
	if len(values) != 1 {
		return 0, fmt.Errorf("expected one %q header, got %d", walkerIDKey, len(values))
	}
	id, err := strconv.ParseUint(values[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad %q header %q: %w", walkerIDKey, values[0], err)
	}
	return uint32(id), nil
}

// RemoteInbox delivers a walker's report to a coordinator in another
// process. Each report is a single unary call; failed calls are not retried.
// Calls wait for the connection to come up, so walkers may start before the
// coordinator is listening.
type RemoteInbox struct {
	conn *grpc.ClientConn
}

func DialCoordinator(ctx context.Context, coordAddr string, opts ...grpc.DialOption) (*RemoteInbox, error) {
	opts = append(
		[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		opts...,
	)
	conn, err := grpc.DialContext(ctx, coordAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator %v: %w", coordAddr, err)
	}
	return &RemoteInbox{conn: conn}, nil
}

func withWalkerID(ctx context.Context, walkerID uint32) context.Context {
	return metadata.AppendToOutgoingContext(
		ctx, walkerIDKey, strconv.FormatUint(uint64(walkerID), 10),
	)
}

func (r *RemoteInbox) Deliver(ctx context.Context, report CompletionReport) error {
	var reply emptypb.Empty
	return r.conn.Invoke(
		withWalkerID(ctx, report.WalkerID), reportCompletionMethod,
		wrapperspb.Int64(int64(report.StepsTaken)), &reply,
		grpc.WaitForReady(true),
	)
}

// Join announces the walker and the UDP address it answers heartbeats on.
func (r *RemoteInbox) Join(ctx context.Context, walkerID uint32, ackAddr string) error {
	var reply emptypb.Empty
	return r.conn.Invoke(
		withWalkerID(ctx, walkerID), joinWalkerMethod,
		wrapperspb.String(ackAddr), &reply,
		grpc.WaitForReady(true),
	)
}

func (r *RemoteInbox) Close() error {
	return r.conn.Close()
}
