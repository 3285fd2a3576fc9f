package domain

import "time"

// Speaker identifies who authored a chat message.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// ChatMessage is one entry of the chatbot transcript. Messages are never
// mutated after they are appended.
type ChatMessage struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Options   []string  `json:"options,omitempty"`
	Careers   []Career  `json:"careers,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PreferenceProfile accumulates the answers given during the chatbot flow.
type PreferenceProfile struct {
	Subjects   []string `json:"subjects"`
	Hobbies    []string `json:"hobbies"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// Clone returns a deep copy of the profile.
func (p PreferenceProfile) Clone() PreferenceProfile {
	return PreferenceProfile{
		Subjects:   append([]string(nil), p.Subjects...),
		Hobbies:    append([]string(nil), p.Hobbies...),
		Strengths:  append([]string(nil), p.Strengths...),
		Weaknesses: append([]string(nil), p.Weaknesses...),
	}
}

// SelectionMethod records how the two careers were chosen.
type SelectionMethod string

const (
	MethodChatbot SelectionMethod = "chatbot"
	MethodManual  SelectionMethod = "manual"
)

// Valid reports whether m is a known selection method.
func (m SelectionMethod) Valid() bool {
	return m == MethodChatbot || m == MethodManual
}

// SelectionResult is the outcome of the selection flow: exactly two distinct
// career ids.
type SelectionResult struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	CareerIDs   [2]string          `json:"selected_careers"`
	Method      SelectionMethod    `json:"selection_method"`
	Preferences *PreferenceProfile `json:"preferences,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
