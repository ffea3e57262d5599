package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/p2p-approval/internal/application/workflow"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "p2p.db")
	cfg.Storage.LocalDir = filepath.Join(dir, "documents")
	cfg.Auth.Roles = map[string]string{
		"alice": "staff",
		"m1":    "manager_1",
		"m2":    "manager_2",
		"fin":   "finance",
	}
	cfg.Render.PollInterval = 50 * time.Millisecond
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Storage.Driver = "ftp"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_StartRejectsBadRoles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Roles["bob"] = "auditor"

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.False(t, c.Ready())
	assert.NoError(t, c.Close())
}

func TestContainer_EndToEnd(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	require.True(t, c.Ready())
	health := c.Health(ctx)
	assert.True(t, health.Overall, "%+v", health.Components)

	engine := c.WorkflowEngine()
	items := []entity.LineItem{{Description: "Laptop", Quantity: 2, UnitPrice: decimal.RequireFromString("999.50")}}

	req, err := engine.CreateRequest(ctx, "alice", workflow.CreateInput{Title: "Laptops", Items: items})
	require.NoError(t, err)

	_, err = engine.Decide(ctx, "m1", req.ID, true, "")
	require.NoError(t, err)
	_, err = engine.Decide(ctx, "m2", req.ID, true, "")
	require.NoError(t, err)
	approved, err := engine.FinanceApprove(ctx, "fin", req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateFinanceApproved.String(), approved.State)

	require.Eventually(t, func() bool {
		order, err := engine.GetPurchaseOrder(ctx, "fin", req.ID)
		return err == nil && order.RenderStatus == entity.RenderStatusRendered
	}, 5*time.Second, 25*time.Millisecond)

	doc, order, err := engine.PurchaseOrderDocument(ctx, "alice", req.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, doc)
	assert.Contains(t, order.PONumber, "PO-")

	result, err := engine.SubmitReceipt(ctx, "alice", req.ID, workflow.ReceiptInput{
		Document: workflow.Document{Content: []byte("2 x Laptop @ 999.50"), ContentType: "text/plain"},
		Items:    items,
	})
	require.NoError(t, err)
	assert.True(t, result.Validated)

	register, contentType, err := c.Services().Register.Export(ctx, "fin")
	require.NoError(t, err)
	assert.NotEmpty(t, register)
	assert.Contains(t, contentType, "spreadsheetml")
}
