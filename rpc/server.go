package rpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"

	businessflow "github.com/brainchat/customer-service/business_flow"
	"github.com/brainchat/customer-service/utils"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CustomerServiceServer is the internal transport surface. It delegates
// every call to the business flows; no resolver behavior lives here.
type CustomerServiceServer interface {
	ResolveCustomer(ctx context.Context, req *ResolveCustomerRequest) (*ResolveCustomerReply, error)
	GetCustomer(ctx context.Context, req *GetCustomerRequest) (*GetCustomerReply, error)
	GetCustomerByScopedID(ctx context.Context, req *GetCustomerByScopedIDRequest) (*GetCustomerReply, error)
	TouchInteraction(ctx context.Context, req *TouchInteractionRequest) (*TouchInteractionReply, error)
	FetchProfile(ctx context.Context, req *FetchProfileRequest) (*FetchProfileReply, error)
}

type customerServiceServer struct {
	flow        businessflow.CustomerFlow
	profileFlow businessflow.ProfileFlow
}

func NewCustomerServiceServer(flow businessflow.CustomerFlow, profileFlow businessflow.ProfileFlow) CustomerServiceServer {
	return &customerServiceServer{flow: flow, profileFlow: profileFlow}
}

func (s *customerServiceServer) ResolveCustomer(ctx context.Context, req *ResolveCustomerRequest) (*ResolveCustomerReply, error) {
	appID, err := uuid.Parse(req.AppID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "app_id must be a valid UUID")
	}

	in := businessflow.UpsertInput{
		AppID:    appID,
		Platform: req.Platform,
		ScopedID: req.ScopedID,
		Fields: businessflow.CustomerFields{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			ProfilePicURL: req.ProfilePicURL,
			Email:         req.Email,
			Phone:         req.Phone,
			AccessToken:   req.AccessToken,
		},
		TouchInteraction: req.TouchInteraction,
	}
	if req.At != nil {
		in.At = utils.TimeToUTC(*req.At)
	}

	result, err := s.flow.Upsert(ctx, in)
	if err != nil {
		return nil, statusFromError(ctx, err)
	}

	return &ResolveCustomerReply{
		Customer: businessflow.ToCustomerDTO(*result.Customer),
		Created:  result.Created,
	}, nil
}

func (s *customerServiceServer) GetCustomer(ctx context.Context, req *GetCustomerRequest) (*GetCustomerReply, error) {
	id, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "customer_id must be a valid UUID")
	}

	customer, err := s.flow.GetByID(ctx, id)
	if err != nil {
		return nil, statusFromError(ctx, err)
	}

	return &GetCustomerReply{Customer: businessflow.ToCustomerDTO(*customer)}, nil
}

func (s *customerServiceServer) GetCustomerByScopedID(ctx context.Context, req *GetCustomerByScopedIDRequest) (*GetCustomerReply, error) {
	appID, err := uuid.Parse(req.AppID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "app_id must be a valid UUID")
	}

	customer, err := s.flow.GetByScopedID(ctx, appID, req.Platform, req.ScopedID)
	if err != nil {
		return nil, statusFromError(ctx, err)
	}

	return &GetCustomerReply{Customer: businessflow.ToCustomerDTO(*customer)}, nil
}

func (s *customerServiceServer) TouchInteraction(ctx context.Context, req *TouchInteractionRequest) (*TouchInteractionReply, error) {
	id, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "customer_id must be a valid UUID")
	}

	at := utils.UTCNow()
	if req.At != nil {
		at = utils.TimeToUTC(*req.At)
	}

	customer, err := s.flow.TouchInteraction(ctx, id, at)
	if err != nil {
		return nil, statusFromError(ctx, err)
	}

	return &TouchInteractionReply{LastInteractionAt: customer.LastInteractionAt}, nil
}

func (s *customerServiceServer) FetchProfile(ctx context.Context, req *FetchProfileRequest) (*FetchProfileReply, error) {
	id, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "customer_id must be a valid UUID")
	}

	result, err := s.profileFlow.FetchProfile(ctx, id)
	if err != nil {
		return nil, statusFromError(ctx, err)
	}

	return &FetchProfileReply{
		FirstName:     result.Fields.FirstName,
		LastName:      result.Fields.LastName,
		ProfilePicURL: result.Fields.ProfilePicURL,
		Source:        string(result.Source),
		Stale:         result.Stale,
		FetchedAt:     result.FetchedAt,
	}, nil
}

// statusFromError maps a business error onto its gRPC status through the
// error taxonomy. The stable business error code and the kind travel in
// trailers so callers can branch without parsing status messages.
func statusFromError(ctx context.Context, err error) error {
	kind := businessflow.KindOf(err)

	md := metadata.Pairs(ErrorKindTrailer, string(kind))
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		md.Set(ErrorCodeTrailer, be.Code)
	}
	if trailerErr := grpc.SetTrailer(ctx, md); trailerErr != nil {
		log.Printf("rpc: failed to set error trailer: %v", trailerErr)
	}
	message := "internal error"
	if be != nil && kind != businessflow.KindInternal {
		message = be.Message
	}

	switch kind {
	case businessflow.KindNotFound:
		return status.Error(codes.NotFound, message)
	case businessflow.KindConflict:
		return status.Error(codes.AlreadyExists, message)
	case businessflow.KindUnauthorized:
		return status.Error(codes.Unauthenticated, message)
	case businessflow.KindRateLimited:
		return status.Error(codes.ResourceExhausted, message)
	case businessflow.KindUnavailable:
		return status.Error(codes.Unavailable, message)
	case businessflow.KindInvalidArgument:
		return status.Error(codes.InvalidArgument, message)
	default:
		log.Printf("rpc: internal error: %v", err)
		return status.Error(codes.Internal, message)
	}
}

// serviceDesc describes the service to grpc-go the way generated code
// would, minus the code generator.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CustomerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveCustomer", Handler: resolveCustomerHandler},
		{MethodName: "GetCustomer", Handler: getCustomerHandler},
		{MethodName: "GetCustomerByScopedID", Handler: getCustomerByScopedIDHandler},
		{MethodName: "TouchInteraction", Handler: touchInteractionHandler},
		{MethodName: "FetchProfile", Handler: fetchProfileHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func resolveCustomerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveCustomerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustomerServiceServer).ResolveCustomer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ResolveCustomer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustomerServiceServer).ResolveCustomer(ctx, req.(*ResolveCustomerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getCustomerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetCustomerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustomerServiceServer).GetCustomer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetCustomer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustomerServiceServer).GetCustomer(ctx, req.(*GetCustomerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getCustomerByScopedIDHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetCustomerByScopedIDRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustomerServiceServer).GetCustomerByScopedID(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetCustomerByScopedID"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustomerServiceServer).GetCustomerByScopedID(ctx, req.(*GetCustomerByScopedIDRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func touchInteractionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TouchInteractionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustomerServiceServer).TouchInteraction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/TouchInteraction"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustomerServiceServer).TouchInteraction(ctx, req.(*TouchInteractionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func fetchProfileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FetchProfileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CustomerServiceServer).FetchProfile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/FetchProfile"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CustomerServiceServer).FetchProfile(ctx, req.(*FetchProfileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// InternalAuthInterceptor rejects calls whose metadata does not carry the
// shared internal token. Comparison is constant-time.
func InternalAuthInterceptor(internalToken string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "missing call metadata")
		}

		tokens := md.Get(InternalTokenHeader)
		if len(tokens) == 0 {
			return nil, status.Error(codes.PermissionDenied, "missing internal token")
		}
		if subtle.ConstantTimeCompare([]byte(tokens[0]), []byte(internalToken)) != 1 {
			return nil, status.Error(codes.PermissionDenied, "invalid internal token")
		}

		return handler(ctx, req)
	}
}

// NewServer builds the gRPC server with the JSON codec forced and the
// internal token check installed.
func NewServer(internalToken string, srv CustomerServiceServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(InternalAuthInterceptor(internalToken)),
	)
	server := grpc.NewServer(opts...)
	server.RegisterService(&serviceDesc, srv)
	return server
}
