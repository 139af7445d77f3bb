package server_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scscp.dev/scscpd/call"
	"scscp.dev/scscpd/mux"
	"scscp.dev/scscpd/openmath"
	"scscp.dev/scscpd/server"
)

func TestServiceRegistersGetAllowedHeads(t *testing.T) {
	svc := server.NewService(mux.HandleFunc("arith1", "plus", func(_ context.Context, pc call.ProcedureCall) (openmath.Object, error) {
		return openmath.IntObj(0), nil
	}))

	h, ok := svc.Mux().Handler("scscp_transient_1", "get_allowed_heads")
	require.True(t, ok)

	result, err := h.HandleCall(context.Background(), call.ProcedureCall{CallID: "c1"})
	require.NoError(t, err)
	require.Equal(t, openmath.App, result.Kind)

	var found bool
	for _, child := range result.Children {
		if child.Kind == openmath.Symbol && child.CD == "arith1" && child.Name == "plus" {
			found = true
		}
	}
	assert.True(t, found, "get_allowed_heads result should list arith1.plus")
}
