package mcp

import "encoding/json"

// NotificationKind is the closed set of server-initiated notifications the
// Supervisor understands. Anything else maps to NotificationUnknown and is
// logged rather than acted on.
type NotificationKind int

const (
	NotificationUnknown NotificationKind = iota
	NotificationInitialized
	NotificationProgress
	NotificationLogMessage
	NotificationToolsListChanged
	NotificationResourcesListChanged
	NotificationPromptsListChanged
	NotificationCancelled
)

// Server-initiated notification methods.
const (
	MethodProgress             = "notifications/progress"
	MethodLogMessage           = "notifications/message"
	MethodToolsListChanged     = "notifications/tools/list_changed"
	MethodResourcesListChanged = "notifications/resources/list_changed"
	MethodPromptsListChanged   = "notifications/prompts/list_changed"
	MethodCancelled            = "notifications/cancelled"
)

var notificationMethods = map[string]NotificationKind{
	MethodInitialized:          NotificationInitialized,
	MethodProgress:             NotificationProgress,
	MethodLogMessage:           NotificationLogMessage,
	MethodToolsListChanged:     NotificationToolsListChanged,
	MethodResourcesListChanged: NotificationResourcesListChanged,
	MethodPromptsListChanged:   NotificationPromptsListChanged,
	MethodCancelled:            NotificationCancelled,
}

// ParseNotificationKind maps a method name onto its kind.
func ParseNotificationKind(method string) NotificationKind {
	if kind, ok := notificationMethods[method]; ok {
		return kind
	}
	return NotificationUnknown
}

func (k NotificationKind) String() string {
	for method, kind := range notificationMethods {
		if kind == k {
			return method
		}
	}
	return "unknown"
}

// Notification is a decoded server-initiated notification.
type Notification struct {
	Server string
	Kind   NotificationKind
	Method string
	Params json.RawMessage
}

// progressParams is the payload of notifications/progress.
type progressParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// logMessageParams is the payload of notifications/message.
type logMessageParams struct {
	Level  string `json:"level"`
	Logger string `json:"logger,omitempty"`
	Data   any    `json:"data"`
}
