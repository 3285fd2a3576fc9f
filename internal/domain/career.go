package domain

// Career is a catalog entry describing one career path.
type Career struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Skills      []string `json:"skills" yaml:"skills"`
	Education   []string `json:"education" yaml:"education"`
	SalaryRange string   `json:"salary_range" yaml:"salary_range"`
}

// Question is a single multiple-choice question. CorrectAnswer holds the
// text of the correct option.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Text          string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"-" yaml:"correct_answer"`
	Explanation   string   `json:"-" yaml:"explanation"`
}

// HasOption reports whether option is one of the question's choices.
func (q *Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Test is the fixed question bank for one career.
type Test struct {
	ID          string     `json:"id" yaml:"id"`
	CareerID    string     `json:"career_id" yaml:"career_id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// ResourceType classifies a learning resource.
type ResourceType string

const (
	ResourceVideo   ResourceType = "video"
	ResourceArticle ResourceType = "article"
	ResourceCourse  ResourceType = "course"
)

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceVideo, ResourceArticle, ResourceCourse:
		return true
	default:
		return false
	}
}

// LearningResource is study material recommended for a career.
type LearningResource struct {
	ID          string       `json:"id" yaml:"id"`
	CareerID    string       `json:"career_id" yaml:"career_id"`
	Title       string       `json:"title" yaml:"title"`
	Type        ResourceType `json:"type" yaml:"type"`
	URL         string       `json:"url" yaml:"url"`
	Duration    string       `json:"duration,omitempty" yaml:"duration"`
	Provider    string       `json:"provider" yaml:"provider"`
	Description string       `json:"description" yaml:"description"`
}
