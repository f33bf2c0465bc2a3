package connections

import "github.com/linkup/backend/internal/models"

// UpdateUsersEvent carries a user's full derived view set to their client.
type UpdateUsersEvent struct {
	Type string `json:"type"`
	models.UserViews
}

// UpdateUsers wraps the views in an outbound update_users frame.
func UpdateUsers(views models.UserViews) UpdateUsersEvent {
	return UpdateUsersEvent{Type: "update_users", UserViews: views}
}

// NotificationEvent tells a peer that state affecting them changed. The
// refresh_users action prompts the client to re-request its view set.
type NotificationEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// Notification builds an outbound notification frame.
func Notification(message string) NotificationEvent {
	return NotificationEvent{Type: "notification", Message: message, Action: "refresh_users"}
}
