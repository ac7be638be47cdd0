package agent

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

// Client is an installer.Target backed by a remote install agent.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

var _ installer.Target = (*Client)(nil)

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to the agent at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Install(ctx context.Context, extensionID, version string) error {
	ref := manifest.Ref{ID: extensionID, Version: version}
	if err := c.cc.Invoke(ctx, methodInstall, refToStruct(ref), new(emptypb.Empty)); err != nil {
		return fromStatus("install", ref, err)
	}
	return nil
}

func (c *Client) Uninstall(ctx context.Context, extensionID, version string) error {
	ref := manifest.Ref{ID: extensionID, Version: version}
	if err := c.cc.Invoke(ctx, methodUninstall, refToStruct(ref), new(emptypb.Empty)); err != nil {
		return fromStatus("uninstall", ref, err)
	}
	return nil
}

// ListInstalled returns what the agent reports as installed, sorted by id.
func (c *Client) ListInstalled(ctx context.Context) ([]manifest.Ref, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListInstalled, &emptypb.Empty{}, out); err != nil {
		return nil, fmt.Errorf("list installed: %w", err)
	}
	return refsFromStruct(out)
}

func fromStatus(op string, ref manifest.Ref, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s %s: %w", op, ref, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w: %w", op, manifest.NotFoundError(ref.ID, ref.Version), err)
	case codes.AlreadyExists:
		return fmt.Errorf("%s %s: %w: %w", op, ref, installer.ErrAlreadyInstalled, err)
	case codes.Canceled:
		return fmt.Errorf("%s %s: %w", op, ref, context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s %s: %w", op, ref, context.DeadlineExceeded)
	default:
		return fmt.Errorf("%s %s: %w", op, ref, err)
	}
}
