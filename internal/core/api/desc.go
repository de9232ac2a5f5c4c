package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "medaudit.scoring.v1.ScoringService"

// ScoringServer is the server API for the scoring service.
type ScoringServer interface {
	Score(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Recalculate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckRuleVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterScoringServer registers srv on s.
func RegisterScoringServer(s grpc.ServiceRegistrar, srv ScoringServer) {
	s.RegisterService(&ScoringServiceDesc, srv)
}

// ScoringServiceDesc describes the scoring service for grpc.Server.
var ScoringServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ScoringServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Score", Handler: unaryHandler("Score", ScoringServer.Score)},
		{MethodName: "Recalculate", Handler: unaryHandler("Recalculate", ScoringServer.Recalculate)},
		{MethodName: "CheckRuleVersion", Handler: unaryHandler("CheckRuleVersion", ScoringServer.CheckRuleVersion)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medaudit/scoring/v1/scoring.proto",
}

type unaryMethod func(ScoringServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a ScoringServer method to grpc.MethodDesc.Handler,
// running it through the server's interceptor chain.
func unaryHandler(name string, call unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ScoringServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ScoringServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ScoringClient calls the scoring service.
type ScoringClient struct {
	cc grpc.ClientConnInterface
}

// NewScoringClient creates a client over cc.
func NewScoringClient(cc grpc.ClientConnInterface) *ScoringClient {
	return &ScoringClient{cc: cc}
}

func (c *ScoringClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Score calls ScoringService.Score.
func (c *ScoringClient) Score(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Score", in, opts...)
}

// Recalculate calls ScoringService.Recalculate.
func (c *ScoringClient) Recalculate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Recalculate", in, opts...)
}

// CheckRuleVersion calls ScoringService.CheckRuleVersion.
func (c *ScoringClient) CheckRuleVersion(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CheckRuleVersion", in, opts...)
}
