package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shopspring/decimal"

	"github.com/nvandessel/tier-alloc/internal/allocation"
	"github.com/nvandessel/tier-alloc/internal/codec"
	"github.com/nvandessel/tier-alloc/internal/constants"
	"github.com/nvandessel/tier-alloc/internal/models"
	"github.com/nvandessel/tier-alloc/internal/ratelimit"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/nvandessel/tier-alloc/internal/strategy"
)

const (
	allocationURIPrefix = "tieralloc://allocations/"
	defaultHistoryLimit = 20
)

// registerTools registers all tieralloc MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolAllocate,
		Description: "Allocate integer counts across 30 ordinal tiers per group so the weighted sum approaches a target",
	}, s.handleAllocate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolDeliveryTypes,
		Description: "List the supported delivery types and their allocation strategies",
	}, s.handleDeliveryTypes)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolDecode,
		Description: "Expand run-length encoded allocation lines into per-tier rows",
	}, s.handleDecode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolHistory,
		Description: "List saved allocation runs, newest first",
	}, s.handleHistory)
}

// registerResources exposes saved allocations as markdown.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: allocationURIPrefix + "{id}",
		Name:        "tieralloc-allocation",
		Description: "A saved allocation run with its encoded rows.",
		MIMEType:    "text/markdown",
	}, s.handleAllocationResource)
}

func (s *Server) handleAllocate(ctx context.Context, req *sdk.CallToolRequest, args AllocateInput) (_ *sdk.CallToolResult, _ AllocateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolAllocate, start, retErr, sanitizeToolParams(map[string]any{
			"delivery_type": args.DeliveryType, "target": args.Target, "groups": args.Groups,
			"ratio_a": args.RatioA, "ratio_b": args.RatioB, "save": args.Save,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolAllocate); err != nil {
		return nil, AllocateOutput{}, err
	}

	dt := constants.DeliveryType(args.DeliveryType)
	if !s.manager.Supported(dt) {
		return nil, AllocateOutput{}, fmt.Errorf("unsupported delivery type %q", args.DeliveryType)
	}
	target, err := decimal.NewFromString(args.Target)
	if err != nil {
		return nil, AllocateOutput{}, fmt.Errorf("invalid target %q: %w", args.Target, err)
	}
	ratioA, err := optionalDecimal("ratio_a", args.RatioA)
	if err != nil {
		return nil, AllocateOutput{}, err
	}
	ratioB, err := optionalDecimal("ratio_b", args.RatioB)
	if err != nil {
		return nil, AllocateOutput{}, err
	}

	out, err := s.manager.Allocate(ctx, strategy.Request{
		DeliveryType: dt,
		Target:       target,
		Groups:       args.Groups,
		RatioA:       ratioA,
		RatioB:       ratioB,
	})

	var inputErr *allocation.InputError
	switch {
	case errors.As(err, &inputErr):
		s.logger.Warn("allocation skipped", "delivery_type", args.DeliveryType, "reason", inputErr.Reason)
		result := AllocateOutput{
			DeliveryType: args.DeliveryType,
			Target:       target.String(),
			Achieved:     "0",
			Error:        target.Abs().String(),
			Warning:      inputErr.Error(),
		}
		if out != nil {
			result.Variant = out.Strategy.Variant.String()
			result.Error = out.Error.String()
			result.Encoded = encodedLines(out.Matrix)
		}
		return nil, result, nil
	case err != nil:
		return nil, AllocateOutput{}, err
	}

	result := AllocateOutput{
		DeliveryType:     args.DeliveryType,
		Variant:          out.Strategy.Variant.String(),
		Target:           out.Target.String(),
		Achieved:         out.Achieved.String(),
		Error:            out.Error.String(),
		Iterations:       out.Iterations,
		ExceedsThreshold: out.Error.GreaterThan(s.manager.Threshold()),
		Encoded:          encodedLines(out.Matrix),
	}
	if args.Save {
		id, err := s.store.SaveAllocation(ctx, out.Record())
		if err != nil {
			return nil, AllocateOutput{}, fmt.Errorf("failed to save allocation: %w", err)
		}
		result.ID = id
	}
	return nil, result, nil
}

func (s *Server) handleDeliveryTypes(ctx context.Context, req *sdk.CallToolRequest, args DeliveryTypesInput) (_ *sdk.CallToolResult, _ DeliveryTypesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolDeliveryTypes, start, retErr, sanitizeToolParams(map[string]any{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolDeliveryTypes); err != nil {
		return nil, DeliveryTypesOutput{}, err
	}

	strategies := s.manager.DeliveryTypes()
	summaries := make([]DeliveryTypeSummary, 0, len(strategies))
	for _, st := range strategies {
		summary := DeliveryTypeSummary{
			DeliveryType:  string(st.DeliveryType),
			Description:   st.Description,
			Variant:       st.Variant.String(),
			MaxIterations: st.MaxIterations,
			FixedGroups:   st.FixedGroups,
		}
		if st.Split != nil {
			summary.Cohorts = []string{st.Split.CohortA, st.Split.CohortB}
		}
		summaries = append(summaries, summary)
	}
	return nil, DeliveryTypesOutput{DeliveryTypes: summaries, Count: len(summaries)}, nil
}

func (s *Server) handleDecode(ctx context.Context, req *sdk.CallToolRequest, args DecodeInput) (_ *sdk.CallToolResult, _ DecodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolDecode, start, retErr, sanitizeToolParams(map[string]any{"lines": args.Lines}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolDecode); err != nil {
		return nil, DecodeOutput{}, err
	}
	if len(args.Lines) == 0 {
		return nil, DecodeOutput{}, fmt.Errorf("lines is required")
	}

	entries := make([]codec.Entry, 0, len(args.Lines))
	for i, line := range args.Lines {
		e, err := codec.ParseEntry(line)
		if err != nil {
			return nil, DecodeOutput{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	m, err := codec.DecodeMatrix(entries)
	if err != nil {
		return nil, DecodeOutput{}, err
	}

	rows := make([]DecodedRow, m.Len())
	for i := range m.Rows {
		rows[i] = DecodedRow{
			Group: m.Groups[i],
			Tiers: m.Rows[i].Strings(),
			Total: m.Rows[i].Sum().String(),
		}
	}
	return nil, DecodeOutput{Rows: rows, Count: len(rows)}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *sdk.CallToolRequest, args HistoryInput) (_ *sdk.CallToolResult, _ HistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolHistory, start, retErr, sanitizeToolParams(map[string]any{
			"delivery_type": args.DeliveryType, "limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolHistory); err != nil {
		return nil, HistoryOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	records, err := s.store.ListAllocations(ctx, constants.DeliveryType(args.DeliveryType), limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to list allocations: %w", err)
	}

	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, HistoryItem{
			ID:           r.ID,
			DeliveryType: string(r.DeliveryType),
			Variant:      r.Variant.String(),
			Target:       r.Target.String(),
			Achieved:     r.Achieved.String(),
			Error:        r.Error.String(),
			Groups:       r.GroupCount,
			CreatedAt:    r.CreatedAt,
		})
	}
	return nil, HistoryOutput{Allocations: items, Count: len(items)}, nil
}

func (s *Server) handleAllocationResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, allocationURIPrefix)
	if id == uri || id == "" {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}

	rec, err := s.store.GetAllocation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("allocation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     formatRecord(rec),
			},
		},
	}, nil
}

func formatRecord(rec *store.Record) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Allocation %s\n\n", rec.ID))
	sb.WriteString(fmt.Sprintf("**Delivery type:** %s\n", rec.DeliveryType))
	sb.WriteString(fmt.Sprintf("**Variant:** %s\n", rec.Variant))
	sb.WriteString(fmt.Sprintf("**Target:** %s\n", rec.Target))
	sb.WriteString(fmt.Sprintf("**Achieved:** %s (error %s)\n", rec.Achieved, rec.Error))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n\n", rec.CreatedAt.Format(time.RFC3339)))

	sb.WriteString("## Rows\n\n")
	for _, line := range encodedLines(rec.Matrix) {
		sb.WriteString("- `" + line + "`\n")
	}
	return sb.String()
}

func optionalDecimal(name, value string) (*decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return &d, nil
}

func encodedLines(m models.AllocationMatrix) []string {
	entries := codec.EncodeMatrix(m)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}
