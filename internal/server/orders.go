package server

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/ledger"
)

const OrdersServiceName = "tools.v1.OrdersService"

// OrdersService is the server API of tools.v1.OrdersService.
type OrdersService interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	ShrinkItems(context.Context, *ShrinkItemsRequest) (*ItemsResponse, error)
	ExpectedTools(context.Context, *OrderRequest) (*ExpectedToolsResponse, error)
	DeleteOrder(context.Context, *OrderRequest) (*Empty, error)
}

var ordersServiceDesc = grpc.ServiceDesc{
	ServiceName: OrdersServiceName,
	HandlerType: (*OrdersService)(nil),
	Methods: []grpc.MethodDesc{
		method(OrdersServiceName, "CreateOrder", OrdersService.CreateOrder),
		method(OrdersServiceName, "GetOrder", OrdersService.GetOrder),
		method(OrdersServiceName, "ShrinkItems", OrdersService.ShrinkItems),
		method(OrdersServiceName, "ExpectedTools", OrdersService.ExpectedTools),
		method(OrdersServiceName, "DeleteOrder", OrdersService.DeleteOrder),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tools/v1/orders",
}

func RegisterOrdersService(s grpc.ServiceRegistrar, srv OrdersService) {
	s.RegisterService(&ordersServiceDesc, srv)
}

// Ledger is the order-facing part of ledger.Ledger.
type Ledger interface {
	CreateOrder(ctx context.Context, req ledger.OrderRequest) (*entity.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*entity.Order, error)
	ShrinkItems(ctx context.Context, orderID uuid.UUID, smaller []ledger.ItemRequest) ([]entity.OrderItem, error)
	ExpectedMultiset(ctx context.Context, orderID uuid.UUID) ([]entity.ToolID, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
}

type OrdersServer struct {
	ledger Ledger
	logger *slog.Logger
}

var _ OrdersService = (*OrdersServer)(nil)

func NewOrdersServer(l Ledger, logger *slog.Logger) *OrdersServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrdersServer{ledger: l, logger: logger}
}

func (s *OrdersServer) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	o, err := s.ledger.CreateOrder(ctx, *req)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	s.logger.Info("order created", "order_id", o.ID, "items", len(o.Items))
	return &OrderResponse{Order: o}, nil
}

func (s *OrdersServer) GetOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &OrderResponse{Order: o}, nil
}

func (s *OrdersServer) ShrinkItems(ctx context.Context, req *ShrinkItemsRequest) (*ItemsResponse, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	removed, err := s.ledger.ShrinkItems(ctx, orderID, req.Items)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &ItemsResponse{Items: removed}, nil
}

func (s *OrdersServer) ExpectedTools(ctx context.Context, req *OrderRequest) (*ExpectedToolsResponse, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	tools, err := s.ledger.ExpectedMultiset(ctx, orderID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return &ExpectedToolsResponse{OrderID: orderID.String(), Tools: tools}, nil
}

func (s *OrdersServer) DeleteOrder(ctx context.Context, req *OrderRequest) (*Empty, error) {
	orderID, err := parseID("order_id", req.OrderID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	if err := s.ledger.DeleteOrder(ctx, orderID); err != nil {
		return nil, common.ToStatus(err)
	}
	return &Empty{}, nil
}
