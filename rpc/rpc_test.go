package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := jsonCodec{}
	assert.Equal(t, "json", codec.Name())

	first := "Maya"
	in := &ResolveCustomerRequest{
		AppID:            "7c1f2f6e-0000-4000-8000-000000000001",
		Platform:         "instagram",
		ScopedID:         "1000000000000001",
		FirstName:        &first,
		TouchInteraction: true,
	}

	bs, err := codec.Marshal(in)
	require.NoError(t, err)

	out := &ResolveCustomerRequest{}
	require.NoError(t, codec.Unmarshal(bs, out))
	assert.Equal(t, in.AppID, out.AppID)
	require.NotNil(t, out.FirstName)
	assert.Equal(t, "Maya", *out.FirstName)
	assert.True(t, out.TouchInteraction)
	// Absent optional fields stay absent
	assert.Nil(t, out.LastName)
}

func TestInternalAuthInterceptor(t *testing.T) {
	const token = "0123456789abcdef0123456789abcdef"

	interceptor := InternalAuthInterceptor(token)
	info := &grpc.UnaryServerInfo{FullMethod: "/" + ServiceName + "/GetCustomer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	}

	t.Run("ValidToken", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(),
			metadata.Pairs(InternalTokenHeader, token))

		resp, err := interceptor(ctx, nil, info, handler)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, info, handler)
		require.Error(t, err)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("MissingToken", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{})

		_, err := interceptor(ctx, nil, info, handler)
		require.Error(t, err)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("WrongToken", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(),
			metadata.Pairs(InternalTokenHeader, "not-the-token"))

		_, err := interceptor(ctx, nil, info, handler)
		require.Error(t, err)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})
}
