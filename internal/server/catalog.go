package server

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
)

const CatalogServiceName = "tools.v1.CatalogService"

// CatalogService is the server API of tools.v1.CatalogService.
type CatalogService interface {
	AddTool(context.Context, *entity.Tool) (*entity.Tool, error)
	ListTools(context.Context, *Empty) (*ToolsResponse, error)
	ResolveLabel(context.Context, *ResolveLabelRequest) (*ResolveLabelResponse, error)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogService)(nil),
	Methods: []grpc.MethodDesc{
		method(CatalogServiceName, "AddTool", CatalogService.AddTool),
		method(CatalogServiceName, "ListTools", CatalogService.ListTools),
		method(CatalogServiceName, "ResolveLabel", CatalogService.ResolveLabel),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tools/v1/catalog",
}

func RegisterCatalogService(s grpc.ServiceRegistrar, srv CatalogService) {
	s.RegisterService(&catalogServiceDesc, srv)
}

// Catalog is satisfied by catalog.Catalog.
type Catalog interface {
	Add(ctx context.Context, tool entity.Tool) (*entity.Tool, error)
	List(ctx context.Context) ([]entity.Tool, error)
	Resolve(ctx context.Context, label string) (entity.ToolID, error)
}

type CatalogServer struct {
	catalog Catalog
	logger  *slog.Logger
}

var _ CatalogService = (*CatalogServer)(nil)

func NewCatalogServer(c Catalog, logger *slog.Logger) *CatalogServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogServer{catalog: c, logger: logger}
}

func (s *CatalogServer) AddTool(ctx context.Context, req *entity.Tool) (*entity.Tool, error) {
	t, err := s.catalog.Add(ctx, *req)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	s.logger.Info("tool added", "tool_id", t.ID, "name", t.Name)
	return t, nil
}

func (s *CatalogServer) ListTools(ctx context.Context, _ *Empty) (*ToolsResponse, error) {
	tools, err := s.catalog.List(ctx)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &ToolsResponse{Tools: tools}, nil
}

func (s *CatalogServer) ResolveLabel(ctx context.Context, req *ResolveLabelRequest) (*ResolveLabelResponse, error) {
	id, err := s.catalog.Resolve(ctx, req.Label)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &ResolveLabelResponse{ToolID: id}, nil
}
