package selection

import (
	"fmt"
	"strings"

	"github.com/ashureev/skill-worlds/internal/domain"
)

// State is a position in the chatbot conversation.
type State int

const (
	StateAskName State = iota
	StateAskSubject
	StateAskFocus
	StateAskStrength
	StateAskWeakness
	StatePickCareers
	StateDone
)

var stateNames = [...]string{
	StateAskName:     "ask_name",
	StateAskSubject:  "ask_subject",
	StateAskFocus:    "ask_focus",
	StateAskStrength: "ask_strength",
	StateAskWeakness: "ask_weakness",
	StatePickCareers: "pick_careers",
	StateDone:        "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	greetingText = "Hello! 👋 Welcome to Parallel Skill Worlds, your AI-powered career guide. " +
		"I'm here to help you discover the best career path based on your interests and skills.\n\n" +
		"Before we begin, what's your name?"
	askSubjectText   = "Nice to meet you, %s! 😊 Let's explore careers that match your interests.\n\nWhich subject do you enjoy the most?"
	askStrengthText  = "What is your strongest skill?"
	askWeaknessText  = "Which of these would you like to improve?"
	recommendText    = "Based on your interests and skills, %s, here are three careers that would be perfect for you. Please select exactly two to proceed:"
	pickReminderText = "Please select exactly two careers to proceed."
	completedText    = "Perfect choices! 🎉 Let's begin your learning journey with mock tests and study materials tailored to your selected careers."
)

// Subject categories, keyed by the part of the menu label before " (".
const (
	SubjectScienceMath     = "Science & Math"
	SubjectBusinessFinance = "Business & Finance"
	SubjectArts            = "Arts & Creativity"
	SubjectLaw             = "Law & Justice"
	SubjectSocial          = "Social Sciences & Psychology"
)

var subjectOptions = []string{
	SubjectScienceMath + " (Technology, Engineering, Healthcare)",
	SubjectBusinessFinance + " (Marketing, Investment, Business Strategy)",
	SubjectArts + " (Design, Animation, UX/UI)",
	SubjectLaw + " (Legal Careers, Public Policy)",
	SubjectSocial + " (Human Behavior, Counseling)",
}

type followUp struct {
	question string
	options  []string
}

var followUps = map[string]followUp{
	SubjectScienceMath: {
		question: "What type of scientific work interests you most?",
		options: []string{
			"Technology & Programming 💻",
			"Data Analysis & Research 📊",
			"Healthcare & Medicine 🏥",
			"Engineering & Design 🔧",
		},
	},
	SubjectBusinessFinance: {
		question: "What type of business work interests you?",
		options: []string{
			"Managing money, stocks, and investments 📈",
			"Creating marketing campaigns and branding 📢",
			"Advising companies on business strategy 💼",
			"Market research and analysis 📊",
		},
	},
	SubjectArts: {
		question: "What type of creative work do you prefer?",
		options: []string{
			"Graphic design, branding, and digital art 🎨",
			"UX/UI design for apps and websites 🖥️",
			"Animation and visual storytelling 🎬",
			"Brand design and marketing visuals 🎯",
		},
	},
	SubjectLaw: {
		question: "Which area of law interests you most?",
		options: []string{
			"Representing clients in legal cases ⚖️",
			"Corporate law and business regulations 💼",
			"Public policy and government 🏛️",
			"International law and relations 🌍",
		},
	},
	SubjectSocial: {
		question: "What aspect of human behavior interests you most?",
		options: []string{
			"Counseling and therapy 🤝",
			"Research and analysis 📊",
			"Social work and community service 🏘️",
			"Educational psychology 📚",
		},
	},
}

var strengthOptions = []string{
	"Analyzing data and identifying trends 📊",
	"Communication and presentation 🎯",
	"Problem-solving and critical thinking 🧩",
	"Creativity and innovation 💡",
	"Leadership and team management 👥",
}

var weaknessOptions = []string{
	"Technical skills and expertise 💻",
	"Public speaking and presentation 🎤",
	"Time management and organization 📅",
	"Creative thinking and innovation 🎨",
	"Leadership and decision making 👑",
}

// subjectCareers narrows recommendations for some subjects. Other subjects
// draw from the whole catalog. Lists shorter than RecommendationCount are
// topped up by Recommend, so Business & Finance also offers the first
// catalog career.
var subjectCareers = map[string][]string{
	SubjectScienceMath:     {"software-engineer", "data-scientist", "cybersecurity-analyst"},
	SubjectBusinessFinance: {"digital-marketer", "financial-analyst"},
}

// RecommendationCount is the number of careers offered at the end of the chat.
const RecommendationCount = 3

// SubjectKey returns the category of a subject menu label.
func SubjectKey(label string) string {
	if i := strings.Index(label, " ("); i >= 0 {
		return label[:i]
	}
	return label
}

// FollowUpOptions returns the second-step menu for a subject category.
func FollowUpOptions(subject string) []string {
	return append([]string(nil), followUps[subject].options...)
}

// Recommend picks RecommendationCount careers for a subject: the subject's
// own careers first, topped up from catalog order.
func Recommend(src CareerSource, subject string) []domain.Career {
	out := make([]domain.Career, 0, RecommendationCount)
	seen := make(map[string]bool, RecommendationCount)

	for _, id := range subjectCareers[subject] {
		if c, ok := src.Career(id); ok && !seen[id] {
			out = append(out, c)
			seen[id] = true
		}
	}
	for _, c := range src.Careers() {
		if len(out) >= RecommendationCount {
			break
		}
		if !seen[c.ID] {
			out = append(out, c)
			seen[c.ID] = true
		}
	}
	if len(out) > RecommendationCount {
		out = out[:RecommendationCount]
	}
	return out
}

// transition describes one menu step: which replies it accepts, what it
// records, and where it leads.
type transition struct {
	options func(c *Chatbot) []string // nil accepts any non-empty text
	record  func(c *Chatbot, reply string)
	next    State
}

var transitions = map[State]transition{
	StateAskName: {
		record: func(c *Chatbot, reply string) { c.userName = reply },
		next:   StateAskSubject,
	},
	StateAskSubject: {
		options: func(*Chatbot) []string { return subjectOptions },
		record: func(c *Chatbot, reply string) {
			c.prefs.Subjects = append(c.prefs.Subjects, reply)
			c.subject = SubjectKey(reply)
		},
		next: StateAskFocus,
	},
	StateAskFocus: {
		options: func(c *Chatbot) []string { return followUps[c.subject].options },
		record:  func(c *Chatbot, reply string) { c.prefs.Hobbies = append(c.prefs.Hobbies, reply) },
		next:    StateAskStrength,
	},
	StateAskStrength: {
		options: func(*Chatbot) []string { return strengthOptions },
		record:  func(c *Chatbot, reply string) { c.prefs.Strengths = append(c.prefs.Strengths, reply) },
		next:    StateAskWeakness,
	},
	StateAskWeakness: {
		options: func(*Chatbot) []string { return weaknessOptions },
		record: func(c *Chatbot, reply string) {
			c.prefs.Weaknesses = append(c.prefs.Weaknesses, reply)
			c.recommended = Recommend(c.catalog, c.subject)
		},
		next: StatePickCareers,
	},
}

// prompt builds the bot message that opens state s.
func (c *Chatbot) prompt(s State) domain.ChatMessage {
	msg := domain.ChatMessage{Speaker: domain.SpeakerBot}
	switch s {
	case StateAskName:
		msg.Text = greetingText
	case StateAskSubject:
		msg.Text = fmt.Sprintf(askSubjectText, c.userName)
		msg.Options = append([]string(nil), subjectOptions...)
	case StateAskFocus:
		msg.Text = followUps[c.subject].question
		msg.Options = FollowUpOptions(c.subject)
	case StateAskStrength:
		msg.Text = askStrengthText
		msg.Options = append([]string(nil), strengthOptions...)
	case StateAskWeakness:
		msg.Text = askWeaknessText
		msg.Options = append([]string(nil), weaknessOptions...)
	case StatePickCareers:
		msg.Text = fmt.Sprintf(recommendText, c.userName)
		msg.Careers = append([]domain.Career(nil), c.recommended...)
	case StateDone:
		msg.Text = completedText
	}
	return msg
}
