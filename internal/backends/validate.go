package backends

import (
	"fmt"
	"strings"

	"llmbridge/internal/core"
)

// ValidateRequest checks a canonical request against a backend's known model
// catalog before any network traffic. descriptors may be nil when the backend
// has no static catalog (local discovery); then only structural checks apply.
func ValidateRequest(backend string, req *core.Request, descriptors []core.ModelDescriptor) error {
	if req == nil {
		return core.NewValidationError(backend, "request is nil")
	}
	if len(req.Messages) == 0 {
		return core.NewValidationError(backend, "request has no messages")
	}
	for i, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem, core.RoleUser, core.RoleAssistant:
		default:
			return core.NewValidationError(backend, fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return core.NewValidationError(backend, fmt.Sprintf("temperature %g out of range [0, 2]", *req.Temperature))
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return core.NewValidationError(backend, "max tokens must be positive")
	}
	if len(descriptors) == 0 {
		return nil
	}
	var desc *core.ModelDescriptor
	for i := range descriptors {
		if descriptors[i].ID == req.Model {
			desc = &descriptors[i]
			break
		}
	}
	if desc == nil {
		known := make([]string, 0, len(descriptors))
		for _, d := range descriptors {
			known = append(known, d.ID)
		}
		return core.NewValidationError(backend,
			fmt.Sprintf("unknown model %q (known: %s)", req.Model, strings.Join(known, ", ")))
	}
	if req.MaxTokens != nil && desc.MaxOutputTokens > 0 && *req.MaxTokens > desc.MaxOutputTokens {
		return core.NewValidationError(backend,
			fmt.Sprintf("max tokens %d exceeds model limit %d for %s", *req.MaxTokens, desc.MaxOutputTokens, desc.ID))
	}
	return nil
}

// ClampMaxTokens returns a request whose max-token cap does not exceed the
// model's advertised output limit. Used by adapters that prefer clamping to
// rejection when the caller provides no explicit cap.
func ClampMaxTokens(req *core.Request, limit int) *core.Request {
	if limit <= 0 || req.MaxTokens == nil || *req.MaxTokens <= limit {
		return req
	}
	return req.WithMaxTokens(limit)
}
