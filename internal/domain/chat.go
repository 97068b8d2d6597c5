package domain

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatMessage is the provider-agnostic transcript entry shared by the
// dispatcher, the UI shells and the gateway integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
