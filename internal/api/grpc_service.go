package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sportclub/internal/domain"
	"sportclub/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/guregu/null.v4"
)

const (
	availabilityServiceName = "sportclub.availability.v1.AvailabilityService"

	methodGetAvailability = "/" + availabilityServiceName + "/GetAvailability"
	methodListFields      = "/" + availabilityServiceName + "/ListFields"
	methodBook            = "/" + availabilityServiceName + "/Book"
)

// AvailabilityServer is the gRPC surface. Messages are google.protobuf.Struct.
type AvailabilityServer interface {
	GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListFields(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Book(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(srv AvailabilityServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var AvailabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: unaryHandler(methodGetAvailability, AvailabilityServer.GetAvailability)},
		{MethodName: "ListFields", Handler: unaryHandler(methodListFields, AvailabilityServer.ListFields)},
		{MethodName: "Book", Handler: unaryHandler(methodBook, AvailabilityServer.Book)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sportclub/availability/v1/availability.proto",
}

// AvailabilityClient calls AvailabilityService over a connection.
type AvailabilityClient struct {
	cc grpc.ClientConnInterface
}

func NewAvailabilityClient(cc grpc.ClientConnInterface) *AvailabilityClient {
	return &AvailabilityClient{cc: cc}
}

func (c *AvailabilityClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AvailabilityClient) GetAvailability(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetAvailability, in, opts...)
}

func (c *AvailabilityClient) ListFields(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListFields, in, opts...)
}

func (c *AvailabilityClient) Book(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodBook, in, opts...)
}

// AvailabilityService adapts the booking services to AvailabilityServer.
type AvailabilityService struct {
	bookings      BookingAPI
	fields        FieldAPI
	defaultStatus string
}

func NewAvailabilityService(bookings BookingAPI, fields FieldAPI, defaultStatus string) *AvailabilityService {
	if defaultStatus == "" {
		defaultStatus = models.StatusPending
	}
	return &AvailabilityService{bookings: bookings, fields: fields, defaultStatus: defaultStatus}
}

func (s *AvailabilityService) GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fieldID, ok, err := intField(in, "field_id")
	if err != nil {
		return nil, err
	}
	if !ok || fieldID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "field_id is required")
	}
	date := stringField(in, "date")
	if date == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}

	slots, err := s.bookings.Availability(ctx, fieldID, date)
	if err != nil {
		return nil, grpcError(err)
	}
	out := make([]any, 0, len(slots))
	for _, slot := range slots {
		out = append(out, map[string]any{"start": slot.Start.String(), "end": slot.End.String()})
	}
	return newStruct(map[string]any{"field_id": fieldID, "date": date, "slots": out})
}

func (s *AvailabilityService) ListFields(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	fields, err := s.fields.ListFields(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{
			"id":       f.ID,
			"name":     f.Name,
			"address":  f.Address,
			"surface":  f.Surface,
			"indoor":   f.Indoor,
			"lighting": f.Lighting,
		})
	}
	return newStruct(map[string]any{"fields": out})
}

func (s *AvailabilityService) Book(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fieldID, _, err := intField(in, "field_id")
	if err != nil {
		return nil, err
	}
	req := models.BookingRequest{
		FieldID:   fieldID,
		Date:      stringField(in, "date"),
		StartTime: stringField(in, "start_time"),
		EndTime:   stringField(in, "end_time"),
	}
	for name, dst := range map[string]*null.Int{"user_id": &req.UserID, "team_id": &req.TeamID} {
		v, ok, err := intField(in, name)
		if err != nil {
			return nil, err
		}
		if ok {
			*dst = null.IntFrom(v)
		}
	}
	if v := stringField(in, "activity_type"); v != "" {
		req.ActivityType = null.StringFrom(v)
	}
	if v := stringField(in, "note"); v != "" {
		req.Note = null.StringFrom(v)
	}

	res, err := s.bookings.TryBook(ctx, req, s.defaultStatus)
	if err != nil {
		return nil, grpcError(err)
	}
	if !res.OK {
		return nil, grpcError(domain.ErrSlotTaken)
	}

	reservation, err := toStructValue(res.Reservation)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode reservation")
	}
	return newStruct(map[string]any{"ok": true, "reservation": reservation})
}

// intField reads an optional integer; a present value that is not a whole number is InvalidArgument.
func intField(in *structpb.Struct, name string) (int64, bool, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, false, nil
	}
	switch v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return 0, false, nil
	case *structpb.Value_NumberValue:
	default:
		return 0, false, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	n := v.GetNumberValue()
	if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
		return 0, false, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int64(n), true, nil
}

func stringField(in *structpb.Struct, name string) string {
	return strings.TrimSpace(in.GetFields()[name].GetStringValue())
}

// toStructValue round-trips v through JSON so struct tags shape the message.
func toStructValue(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return s, nil
}
