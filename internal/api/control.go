package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the control surface.
const ServiceName = "momento.v1.Control"

// Control methods. Every request and response is a google.protobuf.Struct.
const (
	MethodStatus        = "Status"
	MethodSync          = "Sync"
	MethodSignOut       = "SignOut"
	MethodListChats     = "ListChats"
	MethodToggleLike    = "ToggleLike"
	MethodComment       = "Comment"
	MethodRenameAlbum   = "RenameAlbum"
	MethodSendMessage   = "SendMessage"
	MethodDeleteComment = "DeleteComment"
	MethodDeleteAlbum   = "DeleteAlbum"
	MethodDeletePhoto   = "DeletePhoto"
	MethodFriend        = "Friend"

	// MethodWatch is server-streaming: one request naming a bus namespace
	// prefix, then one Struct per event until the client goes away.
	MethodWatch = "Watch"
)

// ControlServer is the daemon side of the control surface.
type ControlServer interface {
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sync(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignOut(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListChats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleLike(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Comment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameAlbum(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAlbum(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeletePhoto(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Friend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, WatchStream) error
}

// WatchStream is the server side of a Watch call.
type WatchStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchStream struct {
	grpc.ServerStream
}

func (w watchStream) Send(m *structpb.Struct) error {
	return w.ServerStream.SendMsg(m)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(in, watchStream{stream})
}

type handlerFunc func(ControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, h handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(srv.(ControlServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes momento.v1.Control for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStatus, ControlServer.Status),
		unary(MethodSync, ControlServer.Sync),
		unary(MethodSignOut, ControlServer.SignOut),
		unary(MethodListChats, ControlServer.ListChats),
		unary(MethodToggleLike, ControlServer.ToggleLike),
		unary(MethodComment, ControlServer.Comment),
		unary(MethodRenameAlbum, ControlServer.RenameAlbum),
		unary(MethodSendMessage, ControlServer.SendMessage),
		unary(MethodDeleteComment, ControlServer.DeleteComment),
		unary(MethodDeleteAlbum, ControlServer.DeleteAlbum),
		unary(MethodDeletePhoto, ControlServer.DeletePhoto),
		unary(MethodFriend, ControlServer.Friend),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: MethodWatch, Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "momento/v1/control.proto",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the control surface of a running daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Call invokes method with req and returns the decoded response.
func (c *Client) Call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Watch streams the daemon's events whose kind starts with namespace ("" for
// all) and calls fn for each one. It returns when ctx is done, the daemon
// ends the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, namespace string, fn func(map[string]any) error) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/"+MethodWatch)
	if err != nil {
		return err
	}
	req, err := structpb.NewStruct(map[string]any{"namespace": namespace})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(structpb.Struct)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt.AsMap()); err != nil {
			return err
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
