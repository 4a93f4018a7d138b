package api

import (
	"context"
	"encoding/json"
	"fmt"

	"sessionbook/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const schedulingServiceName = "sessionbook.scheduling.v1.SchedulingService"

const (
	methodListSlots         = "ListSlots"
	methodCreateBooking     = "CreateBooking"
	methodGetBooking        = "GetBooking"
	methodCancelBooking     = "CancelBooking"
	methodCompleteBooking   = "CompleteBooking"
	methodRunAutoCompletion = "RunAutoCompletion"
	methodReconcileCounters = "ReconcileCounters"
)

// SchedulingServer is the gRPC surface. Messages are google.protobuf.Struct
// objects carrying the same JSON fields as the HTTP API.
type SchedulingServer interface {
	ListSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunAutoCompletion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReconcileCounters(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var schedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: schedulingServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodListSlots, Handler: unaryHandler(methodListSlots, SchedulingServer.ListSlots)},
		{MethodName: methodCreateBooking, Handler: unaryHandler(methodCreateBooking, SchedulingServer.CreateBooking)},
		{MethodName: methodGetBooking, Handler: unaryHandler(methodGetBooking, SchedulingServer.GetBooking)},
		{MethodName: methodCancelBooking, Handler: unaryHandler(methodCancelBooking, SchedulingServer.CancelBooking)},
		{MethodName: methodCompleteBooking, Handler: unaryHandler(methodCompleteBooking, SchedulingServer.CompleteBooking)},
		{MethodName: methodRunAutoCompletion, Handler: unaryHandler(methodRunAutoCompletion, SchedulingServer.RunAutoCompletion)},
		{MethodName: methodReconcileCounters, Handler: unaryHandler(methodReconcileCounters, SchedulingServer.ReconcileCounters)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sessionbook/scheduling/v1/scheduling.proto",
}

// RegisterSchedulingServer registers srv on s.
func RegisterSchedulingServer(s grpc.ServiceRegistrar, srv SchedulingServer) {
	s.RegisterService(&schedulingServiceDesc, srv)
}

func unaryHandler(method string, call func(SchedulingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + schedulingServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulingServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SchedulingService implements SchedulingServer on top of the domain services.
type SchedulingService struct {
	svc Services
}

func NewSchedulingService(svc Services) *SchedulingService {
	return &SchedulingService{svc: svc}
}

type slotsRequest struct {
	Provider string `json:"provider"`
	Date     string `json:"date"`
}

type bookingRef struct {
	BookingID int64 `json:"booking_id"`
}

func (s *SchedulingService) ListSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req slotsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.Provider == "" || req.Date == "" {
		return nil, status.Error(codes.InvalidArgument, "provider and date are required")
	}

	listing, err := s.svc.Slots.ListSlots(ctx, req.Provider, req.Date)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(slotListingView(listing))
}

func (s *SchedulingService) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.CreateBookingRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	result, err := s.svc.Bookings.CreateBooking(ctx, &req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(bookingResultView(result))
}

func (s *SchedulingService) GetBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ref, err := bookingRefFrom(in)
	if err != nil {
		return nil, err
	}
	booking, err := s.svc.Bookings.GetBooking(ctx, ref.BookingID, CallerFromContext(ctx).ProviderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func (s *SchedulingService) CancelBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ref, err := bookingRefFrom(in)
	if err != nil {
		return nil, err
	}
	result, err := s.svc.Lifecycle.CancelBooking(ctx, ref.BookingID, CallerFromContext(ctx).ProviderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(result)
}

func (s *SchedulingService) CompleteBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ref, err := bookingRefFrom(in)
	if err != nil {
		return nil, err
	}
	booking, err := s.svc.Lifecycle.CompleteBooking(ctx, ref.BookingID, CallerFromContext(ctx).ProviderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func (s *SchedulingService) RunAutoCompletion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var opts models.AutoCompleteOptions
	if err := fromStruct(in, &opts); err != nil {
		return nil, err
	}
	opts, err := scopeAutoComplete(CallerFromContext(ctx), opts)
	if err != nil {
		return nil, grpcError(err)
	}

	result, err := s.svc.Lifecycle.RunAutoCompletion(ctx, opts)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(result)
}

func (s *SchedulingService) ReconcileCounters(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		ProviderID int64 `json:"provider_id"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	opts, err := scopeAutoComplete(CallerFromContext(ctx), models.AutoCompleteOptions{ProviderID: req.ProviderID})
	if err != nil {
		return nil, grpcError(err)
	}

	result, err := s.svc.Lifecycle.ReconcileCounters(ctx, opts.ProviderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(result)
}

func bookingRefFrom(in *structpb.Struct) (bookingRef, error) {
	var ref bookingRef
	if err := fromStruct(in, &ref); err != nil {
		return ref, err
	}
	if ref.BookingID <= 0 {
		return ref, status.Error(codes.InvalidArgument, "booking_id is required")
	}
	return ref, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("invalid request: %v", err))
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
