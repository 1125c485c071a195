package mq

// Routing keys on the task exchange.
const (
	RoutingPollEmails           = "poll-emails"
	RoutingDispatchNotification = "dispatch-notification"
)

// Worker queues bound to the routing keys above.
const (
	QueuePollEmails           = "poll-emails.q"
	QueueDispatchNotification = "dispatch-notification.q"
)

// PollEmailsPayload triggers one poll cycle. It carries no fields besides the trace id.
type PollEmailsPayload struct {
	TraceID string `json:"trace_id,omitempty"`
}

// DispatchNotificationPayload asks the dispatcher to notify about one stored email.
type DispatchNotificationPayload struct {
	EmailID    int64  `json:"emailId"`
	UserID     int64  `json:"userId"`
	CategoryID int64  `json:"categoryId"`
	IsUrgent   bool   `json:"isUrgent"`
	TraceID    string `json:"trace_id,omitempty"`
}
