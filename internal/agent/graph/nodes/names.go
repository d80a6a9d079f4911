package nodes

// Graph node keys.
const (
	NodeInputConverter = "InputConverter"
	NodeChatModel      = "ChatModel"
	NodeToolExecutor   = "ToolExecutor"
	NodeAnswerParser   = "AnswerParser"
	NodeExecutor       = "Executor"
)
