// Package stream publishes cycle results to gRPC clients as they are
// exported. Results travel as google.protobuf.Struct messages, so neither
// side needs generated code; a client that connects late first receives
// every result published so far.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
)

const (
	serviceName      = "trackfinder.v1.ResultStream"
	streamResults    = "StreamResults"
	streamResultsRPC = "/" + serviceName + "/" + streamResults

	// maxMsgSize bounds one result message; busy events carry thousands of
	// track hits.
	maxMsgSize = 16 * 1024 * 1024
)

// resultStreamServer is the handler contract registered with grpc.
type resultStreamServer interface {
	StreamResults(*emptypb.Empty, grpc.ServerStream) error
}

// ServiceDesc describes the ResultStream service:
//
//	service ResultStream {
//	  rpc StreamResults(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	}
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*resultStreamServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    streamResults,
		Handler:       streamResultsHandler,
		ServerStreams: true,
	}},
	Metadata: "trackfinder/v1/result_stream.proto",
}

func streamResultsHandler(srv any, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(resultStreamServer).StreamResults(req, stream)
}

// NewServer returns a gRPC server with p registered as the ResultStream
// service.
func NewServer(p *Publisher, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	}, opts...)
	s := grpc.NewServer(opts...)
	s.RegisterService(&ServiceDesc, p)
	return s
}

// Subscription is the client side of one result stream.
type Subscription struct {
	cs grpc.ClientStream
}

// Subscribe opens a result stream on conn. Recv returns io.EOF once the
// publisher is closed and every queued result was delivered.
func Subscribe(ctx context.Context, conn grpc.ClientConnInterface) (*Subscription, error) {
	cs, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], streamResultsRPC,
		grpc.MaxCallRecvMsgSize(maxMsgSize))
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{cs: cs}, nil
}

// Recv blocks for the next result.
func (s *Subscription) Recv() (pipeline.Result, error) {
	msg := new(structpb.Struct)
	if err := s.cs.RecvMsg(msg); err != nil {
		return pipeline.Result{}, err
	}
	return fromStruct(msg)
}

// toStruct encodes r through its JSON form. Integers above 2^53 lose
// precision since Struct numbers are doubles.
func toStruct(r pipeline.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode event %d: %w", r.EventID, err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode event %d: %w", r.EventID, err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct) (pipeline.Result, error) {
	var r pipeline.Result
	b, err := protojson.Marshal(s)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}
