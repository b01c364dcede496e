package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client is the caller-side half of the internal transport, used by the
// Webhook and Apps services.
type Client struct {
	conn          *grpc.ClientConn
	internalToken string
}

// NewClient dials the customer service. The internal transport runs on a
// private network; TLS termination is not its job.
func NewClient(target, internalToken string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, internalToken: internalToken}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	ctx = metadata.AppendToOutgoingContext(ctx, InternalTokenHeader, c.internalToken)
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, reply)
}

// ResolveCustomer runs the idempotent webhook-facing upsert
func (c *Client) ResolveCustomer(ctx context.Context, req *ResolveCustomerRequest) (*ResolveCustomerReply, error) {
	reply := new(ResolveCustomerReply)
	if err := c.invoke(ctx, "ResolveCustomer", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) GetCustomer(ctx context.Context, req *GetCustomerRequest) (*GetCustomerReply, error) {
	reply := new(GetCustomerReply)
	if err := c.invoke(ctx, "GetCustomer", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) GetCustomerByScopedID(ctx context.Context, req *GetCustomerByScopedIDRequest) (*GetCustomerReply, error) {
	reply := new(GetCustomerReply)
	if err := c.invoke(ctx, "GetCustomerByScopedID", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) TouchInteraction(ctx context.Context, req *TouchInteractionRequest) (*TouchInteractionReply, error) {
	reply := new(TouchInteractionReply)
	if err := c.invoke(ctx, "TouchInteraction", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) FetchProfile(ctx context.Context, req *FetchProfileRequest) (*FetchProfileReply, error) {
	reply := new(FetchProfileReply)
	if err := c.invoke(ctx, "FetchProfile", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}
