package childagent

import (
	"context"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/agentloop"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcclient"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcproto"
)

// ipcConfirm bridges agentloop's ConfirmFunc onto one permission round trip
// over IPC: report waiting_permission, send the request, and translate the
// commander's reply (spec §4.2 confirmation bridge).
func ipcConfirm(client *ipcclient.Client) agentloop.ConfirmFunc {
	return func(ctx context.Context, call core.ModelToolCall, confirmation agentloop.ToolConfirmation) (core.PermissionResult, error) {
		_ = client.SendStatus(ipcproto.StatusWaitingPermission, confirmation.ToolName, nil)
		return client.RequestPermission(ctx, confirmation.ToolName, confirmation.Input, confirmation.IsDangerous, confirmation.DangerReason)
	}
}
