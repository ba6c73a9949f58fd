package observability

// Attribute keys shared by spans, metrics and structured logs.
const (
	AttrRequestID      = "request.id"
	AttrToolName       = "tool.name"
	AttrSandboxVariant = "sandbox.variant"
	AttrSandboxUnitID  = "sandbox.unit_id"
	AttrAccountSource  = "account.source"
	AttrErrorType      = "error.type"
)
