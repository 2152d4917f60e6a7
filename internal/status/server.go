package status

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/logging"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*statusServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Snapshot",
			Handler:    snapshotHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "status",
}

func snapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(statusServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: snapshotMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(statusServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Server answers snapshot queries for one engine.
type Server struct {
	logger     *logging.Logger
	grpcServer *grpc.Server
}

// NewServer creates a status server reading from source. It serves nothing until [Server.Start].
func NewServer(logger *logging.Logger, source Source) *Server {
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&serviceDesc, &service{source: source})
	return &Server{
		logger:     logger,
		grpcServer: grpcServer,
	}
}

// Start serves on lis in the background.
func (s *Server) Start(lis net.Listener) {
	s.logger.Info("Serving status on ", lis.Addr())
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Errorf("Status server failed: %v", err)
		}
	}()
}

// Stop waits for in-flight queries and stops serving.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
