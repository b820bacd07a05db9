package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "sync"

    "google.golang.org/grpc"
    "google.golang.org/grpc/codes"
    "google.golang.org/grpc/status"

    "github.com/amirimatin/clusterview/pkg/transport"
)

// NodeServer serves a member's status document through
// clusterview.v1.Node/GetClusterState. The monitor never runs one; it exists
// for members written in Go and for simulated clusters.
type NodeServer struct {
    bind   string
    state  transport.SnapshotFunc
    tlsCfg *tls.Config

    mu  sync.Mutex
    lis net.Listener
    srv *grpc.Server
}

// NewNodeServer returns a server answering with the document produced by state.
func NewNodeServer(bind string, state transport.SnapshotFunc) *NodeServer {
    return &NodeServer{bind: bind, state: state}
}

func (s *NodeServer) UseTLS(cfg *tls.Config) *NodeServer { s.tlsCfg = cfg; return s }

func (s *NodeServer) Start(ctx context.Context) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    srv := grpc.NewServer(serverOptions(s.tlsCfg)...)
    srv.RegisterService(&_Node_serviceDesc, &nodeImpl{state: s.state})
    s.mu.Lock()
    s.lis, s.srv = lis, srv
    s.mu.Unlock()
    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

func (s *NodeServer) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *NodeServer) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv, s.lis = nil, nil
    s.mu.Unlock()
    if srv == nil { return nil }
    gracefulStop(ctx, srv)
    return nil
}

type nodeServer interface {
    GetClusterState(ctx context.Context, in *empty) (*blob, error)
}

type nodeImpl struct{ state transport.SnapshotFunc }

func (n *nodeImpl) GetClusterState(ctx context.Context, _ *empty) (*blob, error) {
    if n.state == nil { return nil, status.Error(codes.Unavailable, "no state") }
    b, err := n.state(ctx)
    if err != nil { return nil, status.Error(codes.Unavailable, err.Error()) }
    return &blob{Data: b}, nil
}

var _Node_serviceDesc = grpc.ServiceDesc{
    ServiceName: nodeService,
    HandlerType: (*nodeServer)(nil),
    Methods: []grpc.MethodDesc{{
        MethodName: "GetClusterState",
        Handler:    _Node_GetClusterState_Handler,
    }},
}

func _Node_GetClusterState_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(nodeServer).GetClusterState(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetClusterState}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(nodeServer).GetClusterState(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}
