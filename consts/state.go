package consts

const (
	Agent_Researcher = "Researcher"
	Agent_Analyst    = "Market Analyst"
	Agent_Trader     = "Trader"
	Agent_Reviewer   = "Reviewer"
)

const (
	State_Pending = "pending"
	State_Running = "running"
	State_Done    = "done"
	State_Aborted = "aborted"
	State_Error   = "error"
)

const (
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"

	// schema.Message.Extra keys
	ExtraStatus   = "status"
	ExtraArtifact = "artifact"
	ExtraPhase    = "phase"
	ExtraToolName = "tool_name"
)

// NudgeMessage is injected when the model answers without calling a tool.
const NudgeMessage = "Please respond by calling one of the provided tools."
