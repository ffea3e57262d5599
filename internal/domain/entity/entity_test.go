package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeAmount(t *testing.T) {
	items := []LineItem{
		{Description: "Laptop", Quantity: 1, UnitPrice: decimal.RequireFromString("1000.00")},
		{Description: "Mouse", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
	}

	assert.True(t, decimal.RequireFromString("1059.97").Equal(ComputeAmount(items)))
	assert.True(t, decimal.Zero.Equal(ComputeAmount(nil)))
}

func TestNewLedgerSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		approvals []*Approval
		want      LedgerSnapshot
	}{
		{
			name: "empty ledger",
			want: LedgerSnapshot{},
		},
		{
			name:      "level one approved",
			approvals: []*Approval{{Level: LevelOne, Approved: true}},
			want:      LedgerSnapshot{Level1Decided: true, Level1Approved: true},
		},
		{
			name:      "level one rejected",
			approvals: []*Approval{{Level: LevelOne, Approved: false}},
			want:      LedgerSnapshot{Level1Decided: true, Rejected: true},
		},
		{
			name: "both approved",
			approvals: []*Approval{
				{Level: LevelOne, Approved: true},
				{Level: LevelTwo, Approved: true},
			},
			want: LedgerSnapshot{Level1Decided: true, Level1Approved: true, Level2Decided: true, Level2Approved: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewLedgerSnapshot(tt.approvals)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Level1Decided, got.Decided(LevelOne))
			assert.Equal(t, tt.want.Level2Decided, got.Decided(LevelTwo))
		})
	}
}
