package logger

const (
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldUserID    = "user_id"
	FieldPeerID    = "peer_id"
	FieldMessageID = "message_id"
	FieldEvent     = "event"
	FieldComponent = "component"
)
