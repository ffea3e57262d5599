package service

import (
	"context"
	"fmt"

	"github.com/garyjia/p2p-approval/internal/application/port"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
	"github.com/garyjia/p2p-approval/pkg/apperr"
)

const registerPageSize = 500

// RegisterService exports the purchase order register for finance
type RegisterService struct {
	orders port.OrderRepository
	roles  port.RoleProvider
	writer port.RegisterWriter
	logger Logger
}

// NewRegisterService creates a new RegisterService
func NewRegisterService(orders port.OrderRepository, roles port.RoleProvider, writer port.RegisterWriter, logger Logger) *RegisterService {
	return &RegisterService{orders: orders, roles: roles, writer: writer, logger: logger}
}

// Export returns every purchase order, newest first, in the writer's format
func (s *RegisterService) Export(ctx context.Context, actor string) ([]byte, string, error) {
	role, err := s.roles.Role(ctx, actor)
	if err != nil {
		return nil, "", err
	}
	if role != domainwf.RoleFinance {
		return nil, "", apperr.Forbidden("only finance may export the purchase order register")
	}

	var all []*entity.PurchaseOrder
	for offset := 0; ; offset += registerPageSize {
		page, err := s.orders.List(ctx, registerPageSize, offset)
		if err != nil {
			return nil, "", fmt.Errorf("list purchase orders: %w", err)
		}
		all = append(all, page...)
		if len(page) < registerPageSize {
			break
		}
	}

	content, err := s.writer.Write(all)
	if err != nil {
		return nil, "", fmt.Errorf("write register: %w", err)
	}

	s.logger.Info("Purchase order register exported", "actor", actor, "orders", len(all))
	return content, s.writer.ContentType(), nil
}
