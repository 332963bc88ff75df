package grpcstore

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/consign/consignment"
	"xdao.co/consign/storage"
	"xdao.co/consign/storage/localfs"
	"xdao.co/consign/storage/testkit"
)

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(store)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestGRPCStore_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		cc := startServer(t)
		return &Client{cc: cc, client: NewStoreClient(cc), Timeout: 2 * time.Second}
	})
}

func TestGRPCStore_RejectsInvalidContent(t *testing.T) {
	cc := startServer(t)
	client := NewStoreClient(cc)

	_, err := client.Put(context.Background(), wrapperspb.Bytes([]byte("garbage")))
	if !errors.Is(mapRPC(err), storage.ErrInvalidContent) {
		t.Fatalf("Put(garbage) = %v, want ErrInvalidContent", err)
	}
	_, err = client.Get(context.Background(), wrapperspb.String("not-an-id"))
	if !errors.Is(mapRPC(err), storage.ErrInvalidID) {
		t.Fatalf("Get(not-an-id) = %v, want ErrInvalidID", err)
	}
	_, err = client.Get(context.Background(), wrapperspb.String(consignment.ID{1}.String()))
	if !errors.Is(mapRPC(err), storage.ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestGRPCStore_RequestID(t *testing.T) {
	cc := startServer(t)
	client := NewStoreClient(cc)
	id, _ := testkit.Sample(t, "request id")

	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req_fixed")
	var header metadata.MD
	if _, err := client.Has(ctx, wrapperspb.String(id.String()), grpc.Header(&header)); err != nil {
		t.Fatalf("Has: %v", err)
	}
	if got := header.Get(RequestIDHeader); len(got) != 1 || got[0] != "req_fixed" {
		t.Fatalf("echoed request id = %v, want req_fixed", got)
	}

	header = nil
	if _, err := client.Has(context.Background(), wrapperspb.String(id.String()), grpc.Header(&header)); err != nil {
		t.Fatalf("Has: %v", err)
	}
	if got := header.Get(RequestIDHeader); len(got) != 1 || len(got[0]) <= len("req_") {
		t.Fatalf("generated request id = %v", got)
	}
}
