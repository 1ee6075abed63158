package server

import (
	"context"

	"google.golang.org/grpc"
)

// unary adapts a typed handler to grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(*SyllabusServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*SyllabusServer)
			handler := func(ctx context.Context, r any) (any, error) {
				return call(s, ctx, r.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, req, info, handler)
		},
	}
}

type syllabusService interface {
	Ingest(context.Context, *IngestRequest) (*IngestResponse, error)
	GetRecord(context.Context, *RecordRequest) (*RecordResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*syllabusService)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ingest", (*SyllabusServer).Ingest),
		unary("GetRecord", (*SyllabusServer).GetRecord),
		unary("ListRecords", (*SyllabusServer).ListRecords),
		unary("PatchRecord", (*SyllabusServer).PatchRecord),
		unary("DeleteRecord", (*SyllabusServer).DeleteRecord),
		unary("FileURL", (*SyllabusServer).FileURL),
		unary("InitiateCalendarAuthorization", (*SyllabusServer).InitiateCalendarAuthorization),
		unary("CompleteCalendarAuthorization", (*SyllabusServer).CompleteCalendarAuthorization),
		unary("CalendarStatus", (*SyllabusServer).CalendarStatus),
		unary("DisconnectCalendar", (*SyllabusServer).DisconnectCalendar),
		unary("SyncRecord", (*SyllabusServer).SyncRecord),
		unary("ExportDates", (*SyllabusServer).ExportDates),
		unary("ExportCalendar", (*SyllabusServer).ExportCalendar),
	},
	Streams: []grpc.StreamDesc{},
}

// Invoke calls method on conn using the JSON codec.
func Invoke[Resp any](ctx context.Context, conn grpc.ClientConnInterface, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	if err := conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
