package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
)

// mockAuditRepository is a mock implementation of AuditRepository for testing.
type mockAuditRepository struct {
	mock.Mock
}

func (m *mockAuditRepository) CreateBatch(ctx context.Context, records []*auditDomain.Record) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *mockAuditRepository) List(
	ctx context.Context,
	filter auditDomain.Filter,
) ([]*auditDomain.Record, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.Record), args.Error(1)
}

func (m *mockAuditRepository) DeleteBefore(
	ctx context.Context,
	organizationID int64,
	before time.Time,
) (int64, error) {
	args := m.Called(ctx, organizationID, before)
	return args.Get(0).(int64), args.Error(1)
}
