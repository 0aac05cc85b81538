package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "course_admin.session.v1.SessionService"

// Full method names, used for the public-method and audit-skip sets.
const (
	MethodCreateSession      = "/" + ServiceName + "/CreateSession"
	MethodRefreshSession     = "/" + ServiceName + "/RefreshSession"
	MethodValidateSession    = "/" + ServiceName + "/ValidateSession"
	MethodLogout             = "/" + ServiceName + "/Logout"
	MethodLogoutOtherDevices = "/" + ServiceName + "/LogoutOtherDevices"
	MethodListMySessions     = "/" + ServiceName + "/ListMySessions"
	MethodRevokeUserSessions = "/" + ServiceName + "/RevokeUserSessions"
)

// PublicMethods do not require a bearer token.
var PublicMethods = map[string]bool{
	MethodRefreshSession:  true,
	MethodValidateSession: true,
}

// SessionServiceServer is the server API for SessionService. Messages are google.protobuf.Struct
// documents; field names are listed on each Server method.
type SessionServiceServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LogoutOtherDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMySessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeUserSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SessionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SessionServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(SessionServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for SessionService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("CreateSession", SessionServiceServer.CreateSession),
		methodDesc("RefreshSession", SessionServiceServer.RefreshSession),
		methodDesc("ValidateSession", SessionServiceServer.ValidateSession),
		methodDesc("Logout", SessionServiceServer.Logout),
		methodDesc("LogoutOtherDevices", SessionServiceServer.LogoutOtherDevices),
		methodDesc("ListMySessions", SessionServiceServer.ListMySessions),
		methodDesc("RevokeUserSessions", SessionServiceServer.RevokeUserSessions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "session/v1/session.proto",
}

// RegisterSessionServiceServer registers srv on s.
func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is a thin SessionService client over a grpc.ClientConnInterface.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client on cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes fullMethod with in and returns the response document.
func (c *Client) Call(ctx context.Context, fullMethod string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
