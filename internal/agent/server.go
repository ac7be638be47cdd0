package agent

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

// Lister is implemented by targets that can report what they have installed.
type Lister interface {
	Installed() []manifest.Ref
}

// Server serves the install agent API on top of a local installer.Target.
type Server struct {
	target installer.Target
	logger logr.Logger
}

var _ InstallAgentServer = (*Server)(nil)

func NewServer(target installer.Target, logger logr.Logger) *Server {
	return &Server{target: target, logger: logger}
}

func (s *Server) Install(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	ref, err := refFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.target.Install(logr.NewContext(ctx, s.logger), ref.ID, ref.Version); err != nil {
		if errors.Is(err, installer.ErrAlreadyInstalled) {
			s.logger.V(1).Info("already installed", "ref", ref.String())
		} else {
			s.logger.Error(err, "install failed", "ref", ref.String())
		}
		return nil, toStatus(err)
	}
	s.logger.Info("installed", "ref", ref.String())
	return &emptypb.Empty{}, nil
}

func (s *Server) Uninstall(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	ref, err := refFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.target.Uninstall(logr.NewContext(ctx, s.logger), ref.ID, ref.Version); err != nil {
		s.logger.Error(err, "uninstall failed", "ref", ref.String())
		return nil, toStatus(err)
	}
	s.logger.Info("uninstalled", "ref", ref.String())
	return &emptypb.Empty{}, nil
}

func (s *Server) ListInstalled(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	lister, ok := s.target.(Lister)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "target cannot list installed extensions")
	}
	return refsToStruct(lister.Installed()), nil
}
