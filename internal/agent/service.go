// Package agent exposes an installer.Target over gRPC so the installer can
// drive extension installs on a remote node.
//
// Messages are google.protobuf.Struct values:
//
//	Install, Uninstall:  {"extensionId": string, "version": string} -> Empty
//	ListInstalled:       Empty -> {"installed": [{"extensionId", "version"}, ...]}
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

const (
	ServiceName = "bindery.extensions.agent.v1.InstallAgent"

	methodInstall       = "/" + ServiceName + "/Install"
	methodUninstall     = "/" + ServiceName + "/Uninstall"
	methodListInstalled = "/" + ServiceName + "/ListInstalled"

	fieldExtensionID = "extensionId"
	fieldVersion     = "version"
	fieldInstalled   = "installed"
)

// InstallAgentServer is the server API of the install agent service.
type InstallAgentServer interface {
	Install(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Uninstall(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ListInstalled(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterInstallAgentServer registers srv on r.
func RegisterInstallAgentServer(r grpc.ServiceRegistrar, srv InstallAgentServer) {
	r.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InstallAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Install", Handler: installHandler},
		{MethodName: "Uninstall", Handler: uninstallHandler},
		{MethodName: "ListInstalled", Handler: listInstalledHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bindery/extensions/agent/v1/agent.proto",
}

func installHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InstallAgentServer).Install(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInstall}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InstallAgentServer).Install(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func uninstallHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InstallAgentServer).Uninstall(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodUninstall}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InstallAgentServer).Uninstall(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listInstalledHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InstallAgentServer).ListInstalled(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListInstalled}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InstallAgentServer).ListInstalled(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func refToStruct(ref manifest.Ref) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldExtensionID: structpb.NewStringValue(ref.ID),
		fieldVersion:     structpb.NewStringValue(ref.Version),
	}}
}

func refFromStruct(s *structpb.Struct) (manifest.Ref, error) {
	fields := s.GetFields()
	ref := manifest.Ref{
		ID:      fields[fieldExtensionID].GetStringValue(),
		Version: fields[fieldVersion].GetStringValue(),
	}
	if ref.ID == "" || ref.Version == "" {
		return manifest.Ref{}, fmt.Errorf("%s and %s are required", fieldExtensionID, fieldVersion)
	}
	return ref, nil
}

func refsToStruct(refs []manifest.Ref) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(refs))
	for _, ref := range refs {
		values = append(values, structpb.NewStructValue(refToStruct(ref)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldInstalled: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func refsFromStruct(s *structpb.Struct) ([]manifest.Ref, error) {
	var out []manifest.Ref
	for _, v := range s.GetFields()[fieldInstalled].GetListValue().GetValues() {
		ref, err := refFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// toStatus maps a target error onto a gRPC status.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, manifest.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, installer.ErrAlreadyInstalled):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Aborted, err.Error())
	}
}
