package grpccas

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/proofs/identity"
)

const serviceName = "xdao.proofs.storage.grpccas.v1.CAS"

const (
	methodPut = "/" + serviceName + "/Put"
	methodGet = "/" + serviceName + "/Get"
	methodHas = "/" + serviceName + "/Has"
)

// The service's one non-wrapper message, equivalent to
//
//	message PutRequest {
//	  bytes data = 1;
//	  string algorithm = 2;
//	}
//
// Get and Has take the identity's CID string and answer with well-known
// wrapper types, so no generated code is needed.
var putRequestDesc = mustPutRequestDesc()

func mustPutRequestDesc() protoreflect.MessageDescriptor {
	field := func(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			JsonName: proto.String(name),
			Number:   proto.Int32(num),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     typ.Enum(),
		}
	}
	fd, err := protodesc.NewFile(&descriptorpb.FileDescriptorProto{
		Name:    proto.String("xdao/proofs/storage/grpccas/v1/cas.proto"),
		Package: proto.String("xdao.proofs.storage.grpccas.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("PutRequest"),
			Field: []*descriptorpb.FieldDescriptorProto{
				field("data", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				field("algorithm", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			},
		}},
	}, nil)
	if err != nil {
		panic(fmt.Sprintf("grpccas: build descriptor: %v", err))
	}
	return fd.Messages().ByName("PutRequest")
}

// PutRequest carries the bytes to store and the algorithm to identify them
// under. An empty algorithm means identity.Default.
type PutRequest struct {
	msg *dynamicpb.Message
}

// NewPutRequest returns a request for data under alg.
func NewPutRequest(data []byte, alg identity.Algorithm) *PutRequest {
	r := &PutRequest{msg: dynamicpb.NewMessage(putRequestDesc)}
	r.msg.Set(putRequestDesc.Fields().ByName("data"), protoreflect.ValueOfBytes(data))
	if alg != "" {
		r.msg.Set(putRequestDesc.Fields().ByName("algorithm"), protoreflect.ValueOfString(string(alg)))
	}
	return r
}

func (r *PutRequest) ProtoReflect() protoreflect.Message {
	if r.msg == nil {
		r.msg = dynamicpb.NewMessage(putRequestDesc)
	}
	return r.msg
}

func (r *PutRequest) GetData() []byte {
	return r.ProtoReflect().Get(putRequestDesc.Fields().ByName("data")).Bytes()
}

// GetAlgorithm parses the request's algorithm.
func (r *PutRequest) GetAlgorithm() (identity.Algorithm, error) {
	s := r.ProtoReflect().Get(putRequestDesc.Fields().ByName("algorithm")).String()
	if s == "" {
		return identity.Default, nil
	}
	return identity.ParseAlgorithm(s)
}

// CASServer is the server API for the CAS gRPC service.
type CASServer interface {
	Put(context.Context, *PutRequest) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedCASServer can be embedded to have forward compatible implementations.
type UnimplementedCASServer struct{}

func (UnimplementedCASServer) Put(context.Context, *PutRequest) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedCASServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedCASServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}

// RegisterCASServer registers the CAS service on a gRPC server.
func RegisterCASServer(s grpc.ServiceRegistrar, srv CASServer) {
	s.RegisterService(&casServiceDesc, srv)
}

// CASClient is the client API for the CAS gRPC service.
type CASClient interface {
	Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type casClient struct{ cc grpc.ClientConnInterface }

func NewCASClient(cc grpc.ClientConnInterface) CASClient { return &casClient{cc: cc} }

func (c *casClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodPut, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *casClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodGet, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *casClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodHas, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// unary adapts a typed server method to a grpc.MethodDesc handler.
func unary[Req any, Resp any](method string, newReq func() Req, call func(CASServer, context.Context, Req) (Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CASServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CASServer), ctx, req.(Req))
		})
	}
}

var casServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CASServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: unary(methodPut,
			func() *PutRequest { return &PutRequest{msg: dynamicpb.NewMessage(putRequestDesc)} },
			CASServer.Put)},
		{MethodName: "Get", Handler: unary(methodGet,
			func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
			CASServer.Get)},
		{MethodName: "Has", Handler: unary(methodHas,
			func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) },
			CASServer.Has)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "xdao/proofs/storage/grpccas/v1/cas.proto",
}
