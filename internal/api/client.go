package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the control API of a running client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the control socket. The connection is established lazily.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context) (*structpb.Struct, error) {
	return c.call(ctx, "GetStatus", nil)
}

func (c *Client) ListMessages(ctx context.Context, chatID string, limit int) (*structpb.Struct, error) {
	return c.call(ctx, "ListMessages", map[string]any{"chat_id": chatID, "limit": limit})
}

// InjectMessage stores a text message from userID in chatID and returns its id.
func (c *Client) InjectMessage(ctx context.Context, chatID, userID, fullname, text string) (string, error) {
	out, err := c.call(ctx, "InjectMessage", map[string]any{
		"chat_id":       chatID,
		"user_id":       userID,
		"user_fullname": fullname,
		"text":          text,
	})
	if err != nil {
		return "", err
	}
	return out.GetFields()["object_id"].GetStringValue(), nil
}

func (c *Client) SetTyping(ctx context.Context, chatID, userID string, typing bool) error {
	_, err := c.call(ctx, "SetTyping", map[string]any{"chat_id": chatID, "user_id": userID, "typing": typing})
	return err
}

// WatchEvents streams events with the given kind prefix to fn until ctx is
// cancelled or the server goes away.
func (c *Client) WatchEvents(ctx context.Context, prefix string, fn func(*structpb.Struct)) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/WatchEvents")
	if err != nil {
		return err
	}
	in, _ := structpb.NewStruct(map[string]any{"prefix": prefix})
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(structpb.Struct)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(evt)
	}
}
