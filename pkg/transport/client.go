package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// connectMethod is the fully-qualified gRPC method this client opens a
// single bidirectional stream against for the lifetime of the connection.
// There is no .proto-declared service backing it; the json codec carries
// ToServer/FromServer directly (see codec.go).
const connectMethod = "/nodeagent.Agent/Connect"

var connectStreamDesc = &grpc.StreamDesc{
	StreamName:    "Connect",
	ServerStreams: true,
	ClientStreams: true,
}

// Client is the agent's server connection: a single bidirectional stream
// carrying ToServer out and FromServer in, per §6.
type Client interface {
	// Run opens the stream and pumps messages until out is closed (graceful
	// shutdown, §5 "cancellation"), ctx is cancelled, or the stream fails.
	// It closes in before returning.
	Run(ctx context.Context, out <-chan ToServer, in chan<- FromServer) error
}

// GRPCClient is the default Client, a thin bidi-streaming wrapper over a
// single grpc.ClientConn.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to serverURL. A nil tlsConfig dials with
// insecure transport credentials; this agent's caller only passes nil when
// the resolved configuration's insecure flag is set (§6, §7 — the conflict
// between that flag and supplied certificate material is validated
// earlier, by pkg/security.WarnIfConflicting).
func Dial(serverURL string, tlsConfig *tls.Config) (*GRPCClient, error) {
	var creds credentials.TransportCredentials
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(serverURL, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial server %s: %w", serverURL, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Run implements Client.
func (c *GRPCClient) Run(ctx context.Context, out <-chan ToServer, in chan<- FromServer) error {
	defer close(in)

	stream, err := c.conn.NewStream(ctx, connectStreamDesc, connectMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return fmt.Errorf("open connect stream: %w", err)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.pumpSend(stream, out)
	}()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- c.pumpRecv(stream, in)
	}()

	select {
	case err := <-sendErr:
		return err
	case err := <-recvErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *GRPCClient) pumpSend(stream grpc.ClientStream, out <-chan ToServer) error {
	for msg := range out {
		if err := stream.SendMsg(msg); err != nil {
			return fmt.Errorf("send %s: %w", msg.Kind, err)
		}
	}
	return stream.CloseSend()
}

func (c *GRPCClient) pumpRecv(stream grpc.ClientStream, in chan<- FromServer) error {
	for {
		var msg FromServer
		if err := stream.RecvMsg(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		in <- msg
	}
}
