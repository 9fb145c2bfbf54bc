package protocol

// RPC methods accepted on the web socket.
const (
	MethodConnect = "connect"
	MethodHealth  = "health"

	// MethodChatSend routes free text; MethodUIAction routes a button or
	// list selection. Both answer with the rendered reply.
	MethodChatSend = "chat.send"
	MethodUIAction = "ui.action"

	MethodChannelsStatus = "channels.status"
	MethodFlagsGet       = "flags.get"
)
