package mcp

import (
	"context"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/ratelimit"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/nvandessel/tier-alloc/internal/strategy"
)

func setupTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	rows := []store.GroupWeights{
		{Group: "A", Weights: models.RowFromInts(10, 10, 8, 8, 6, 6, 4, 4, 2, 2)},
		{Group: "B", Weights: models.RowFromInts(5, 5, 4, 4, 3, 3, 2, 2, 1, 1)},
	}
	if err := st.PutWeights(context.Background(), constants.DeliveryCounty, rows); err != nil {
		t.Fatalf("PutWeights failed: %v", err)
	}
	market := []store.GroupWeights{
		{Group: "urban", Weights: rows[0].Weights},
		{Group: "rural", Weights: rows[1].Weights},
	}
	if err := st.PutWeights(context.Background(), constants.DeliveryMarket, market); err != nil {
		t.Fatalf("PutWeights failed: %v", err)
	}

	server, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Manager:  strategy.NewManager(st),
		Store:    st,
		AuditDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, st
}

func TestNewServer_RequiresManagerAndStore(t *testing.T) {
	if _, err := NewServer(&Config{Name: "x", Version: "v0"}); err == nil {
		t.Error("expected error without manager and store")
	}
}

func TestHandleAllocate(t *testing.T) {
	server, st := setupTestServer(t)
	ctx := context.Background()

	result, out, err := server.handleAllocate(ctx, &sdk.CallToolRequest{}, AllocateInput{
		DeliveryType: "county",
		Target:       "100",
		Save:         true,
	})
	if err != nil {
		t.Fatalf("handleAllocate failed: %v", err)
	}
	if result != nil {
		t.Error("Expected nil result (SDK auto-populates)")
	}
	if out.Achieved != "100" || out.Error != "0" {
		t.Errorf("achieved=%s error=%s, want 100/0", out.Achieved, out.Error)
	}
	if out.Variant != "basic" {
		t.Errorf("Variant = %s, want basic", out.Variant)
	}
	want := []string{"A: 1×2+9×1+20×0", "B: 10×1+20×0"}
	if len(out.Encoded) != 2 || out.Encoded[0] != want[0] || out.Encoded[1] != want[1] {
		t.Errorf("Encoded = %v, want %v", out.Encoded, want)
	}
	if out.ID == "" {
		t.Fatal("expected saved id")
	}
	if _, err := st.GetAllocation(ctx, out.ID); err != nil {
		t.Errorf("saved record not found: %v", err)
	}
}

func TestHandleAllocate_InputErrorIsWarning(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleAllocate(context.Background(), nil, AllocateInput{
		DeliveryType: "county",
		Target:       "50",
		Groups:       []string{"A", "missing"},
	})
	if err != nil {
		t.Fatalf("input problems should not fail the tool: %v", err)
	}
	if out.Warning == "" {
		t.Error("expected a warning")
	}
	if out.Achieved != "0" || out.Error != "50" {
		t.Errorf("achieved=%s error=%s, want 0/50", out.Achieved, out.Error)
	}
	if len(out.Encoded) != 1 || out.Encoded[0] != "A+missing: 30×0" {
		t.Errorf("Encoded = %v, want zero rows", out.Encoded)
	}
}

func TestHandleAllocate_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		args AllocateInput
	}{
		{"unknown delivery type", AllocateInput{DeliveryType: "bicycle", Target: "1"}},
		{"bad target", AllocateInput{DeliveryType: "county", Target: "lots"}},
		{"bad ratio", AllocateInput{DeliveryType: "market", Target: "1", RatioA: "half"}},
		{"split without ratios", AllocateInput{DeliveryType: "market", Target: "100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := server.handleAllocate(context.Background(), nil, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandleAllocate_RateLimited(t *testing.T) {
	server, _ := setupTestServer(t)
	server.toolLimiters = ratelimit.ToolLimiters{ratelimit.ToolAllocate: ratelimit.NewLimiter(0, 1)}

	args := AllocateInput{DeliveryType: "county", Target: "10"}
	if _, _, err := server.handleAllocate(context.Background(), nil, args); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	_, _, err := server.handleAllocate(context.Background(), nil, args)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("err = %v, want rate limit error", err)
	}
}

func TestHandleDeliveryTypes(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleDeliveryTypes(context.Background(), nil, DeliveryTypesInput{})
	if err != nil {
		t.Fatalf("handleDeliveryTypes failed: %v", err)
	}
	if out.Count != len(constants.AllDeliveryTypes) {
		t.Fatalf("Count = %d, want %d", out.Count, len(constants.AllDeliveryTypes))
	}
	for _, dt := range out.DeliveryTypes {
		if dt.DeliveryType == "market" {
			if dt.Variant != "smooth" || len(dt.Cohorts) != 2 {
				t.Errorf("market = %+v", dt)
			}
		}
	}
}

func TestHandleDecode(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleDecode(context.Background(), nil, DecodeInput{
		Lines: []string{"A+B: 2×2+14×1+14×0", "C: 30x0"},
	})
	if err != nil {
		t.Fatalf("handleDecode failed: %v", err)
	}
	if out.Count != 3 {
		t.Fatalf("Count = %d, want 3", out.Count)
	}
	if out.Rows[1].Group != "B" || out.Rows[1].Total != "18" {
		t.Errorf("row B = %+v, want total 18", out.Rows[1])
	}
	if len(out.Rows[0].Tiers) != constants.TierCount || out.Rows[0].Tiers[0] != "2" {
		t.Errorf("row A tiers = %v", out.Rows[0].Tiers)
	}

	if _, _, err := server.handleDecode(context.Background(), nil, DecodeInput{}); err == nil {
		t.Error("expected error for empty lines")
	}
	if _, _, err := server.handleDecode(context.Background(), nil, DecodeInput{Lines: []string{"A: 3×1"}}); err == nil {
		t.Error("expected error for short row")
	}
}

func TestHandleHistoryAndResource(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, saved, err := server.handleAllocate(ctx, nil, AllocateInput{DeliveryType: "county", Target: "100", Save: true})
	if err != nil {
		t.Fatalf("handleAllocate failed: %v", err)
	}

	_, hist, err := server.handleHistory(ctx, nil, HistoryInput{DeliveryType: "county"})
	if err != nil {
		t.Fatalf("handleHistory failed: %v", err)
	}
	if hist.Count != 1 || hist.Allocations[0].ID != saved.ID || hist.Allocations[0].Groups != 2 {
		t.Errorf("history = %+v", hist)
	}

	res, err := server.handleAllocationResource(ctx, &sdk.ReadResourceRequest{
		Params: &sdk.ReadResourceParams{URI: allocationURIPrefix + saved.ID},
	})
	if err != nil {
		t.Fatalf("handleAllocationResource failed: %v", err)
	}
	text := res.Contents[0].Text
	if !strings.Contains(text, "# Allocation "+saved.ID) || !strings.Contains(text, "`A: 1×2+9×1+20×0`") {
		t.Errorf("resource text = %q", text)
	}

	_, err = server.handleAllocationResource(ctx, &sdk.ReadResourceRequest{
		Params: &sdk.ReadResourceParams{URI: allocationURIPrefix + "nope"},
	})
	if err == nil {
		t.Error("expected error for unknown allocation")
	}
}
