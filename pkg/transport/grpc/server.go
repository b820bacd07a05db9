package grpc

import (
    "context"
    "crypto/tls"
    "errors"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/codes"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"
    "google.golang.org/grpc/status"

    obsmetrics "github.com/amirimatin/clusterview/pkg/observability/metrics"
    "github.com/amirimatin/clusterview/pkg/observability/tracing"
    "github.com/amirimatin/clusterview/pkg/transport"
)

// Server implements transport.RPCServer over gRPC using a JSON codec. It
// registers the Monitor service and the standard health service.
type Server struct {
    bind   string
    tlsCfg *tls.Config

    mu  sync.Mutex
    lis net.Listener
    srv *grpc.Server
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

func serverOptions(tlsCfg *tls.Config) []grpc.ServerOption {
    opts := []grpc.ServerOption{
        grpc.ForceServerCodec(jsonCodec{}),
        // watch streams are long-lived
        grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
        grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
    }
    if tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg))) }
    return opts
}

func (s *Server) Start(ctx context.Context, h transport.Handlers) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    srv := grpc.NewServer(serverOptions(s.tlsCfg)...)
    healthpb.RegisterHealthServer(srv, health.NewServer())
    srv.RegisterService(&_Monitor_serviceDesc, &monitorImpl{h: h})

    s.mu.Lock()
    s.lis, s.srv = lis, srv
    s.mu.Unlock()

    go func() {
        <-ctx.Done()
        c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = s.Stop(c)
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv, s.lis = nil, nil
    s.mu.Unlock()
    if srv == nil { return nil }
    gracefulStop(ctx, srv)
    return nil
}

func gracefulStop(ctx context.Context, srv *grpc.Server) {
    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        srv.Stop()
    }
}

var _ transport.RPCServer = (*Server)(nil)

// monitorServer defines the methods of clusterview.v1.Monitor.
type monitorServer interface {
    Snapshot(ctx context.Context, in *empty) (*blob, error)
    Summary(ctx context.Context, in *empty) (*blob, error)
    Convergence(ctx context.Context, in *empty) (*blob, error)
    Watch(in *empty, stream grpc.ServerStream) error
}

type monitorImpl struct{ h transport.Handlers }

func callBlob(ctx context.Context, span string, f transport.SnapshotFunc) (*blob, error) {
    if f == nil { return nil, status.Error(codes.Unimplemented, span+" not supported") }
    ctx, end := tracing.StartSpan(ctx, span)
    defer end()
    b, err := f(ctx)
    if err != nil {
        tracing.Fail(ctx, err)
        return nil, status.Error(codes.Internal, err.Error())
    }
    return &blob{Data: b}, nil
}

func (m *monitorImpl) Snapshot(ctx context.Context, _ *empty) (*blob, error) {
    return callBlob(ctx, "grpc.snapshot", m.h.Snapshot)
}

func (m *monitorImpl) Summary(ctx context.Context, _ *empty) (*blob, error) {
    return callBlob(ctx, "grpc.summary", m.h.Summary)
}

func (m *monitorImpl) Convergence(ctx context.Context, _ *empty) (*blob, error) {
    return callBlob(ctx, "grpc.convergence", m.h.Convergence)
}

// Watch pushes every published snapshot until the client goes away or the
// publisher closes the subscription.
func (m *monitorImpl) Watch(_ *empty, stream grpc.ServerStream) error {
    if m.h.Watch == nil { return status.Error(codes.Unimplemented, "watch not supported") }
    ctx := stream.Context()
    ch := m.h.Watch(ctx)
    obsmetrics.WatchSubscribers.Inc()
    defer obsmetrics.WatchSubscribers.Dec()
    for {
        select {
        case <-ctx.Done():
            return nil
        case b, ok := <-ch:
            if !ok { return nil }
            if err := stream.SendMsg(&blob{Data: b}); err != nil {
                if errors.Is(ctx.Err(), context.Canceled) { return nil }
                return err
            }
            obsmetrics.WatchSent.Inc()
        }
    }
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Monitor_serviceDesc = grpc.ServiceDesc{
    ServiceName: monitorService,
    HandlerType: (*monitorServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "Snapshot", Handler: unaryHandler(methodSnapshot, monitorServer.Snapshot)},
        {MethodName: "Summary", Handler: unaryHandler(methodSummary, monitorServer.Summary)},
        {MethodName: "Convergence", Handler: unaryHandler(methodConvergence, monitorServer.Convergence)},
    },
    Streams: []grpc.StreamDesc{{
        StreamName:    "Watch",
        ServerStreams: true,
        Handler:       _Monitor_Watch_Handler,
    }},
}

func unaryHandler(fullMethod string, call func(monitorServer, context.Context, *empty) (*blob, error)) grpc.MethodHandler {
    return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
        in := new(empty)
        if err := dec(in); err != nil { return nil, err }
        if interceptor == nil { return call(srv.(monitorServer), ctx, in) }
        info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
        handler := func(ctx context.Context, req interface{}) (interface{}, error) {
            return call(srv.(monitorServer), ctx, req.(*empty))
        }
        return interceptor(ctx, in, info, handler)
    }
}

func _Monitor_Watch_Handler(srv interface{}, stream grpc.ServerStream) error {
    m := new(empty)
    if err := stream.RecvMsg(m); err != nil { return err }
    return srv.(monitorServer).Watch(m, stream)
}
