package domain

import (
	"strings"
)

// Level is one of the four fixed topic buckets.
type Level string

const (
	LevelHTML       Level = "html"
	LevelCSS        Level = "css"
	LevelJavaScript Level = "javascript"
	LevelReact      Level = "react"
)

// Levels lists every level in quiz order.
var Levels = []Level{LevelHTML, LevelCSS, LevelJavaScript, LevelReact}

// ParseLevel normalizes and validates a level name.
func ParseLevel(raw string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(raw)))
	if l.Order() < 0 {
		return "", Invalid("unknown level %q", raw)
	}
	return l, nil
}

// Order is the level's position in quiz order, or -1 when unknown.
func (l Level) Order() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
	Correct int      `json:"correct"`
}

// LevelQuestions is the ordered question set of one level.
type LevelQuestions struct {
	Level     Level      `json:"level"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Bank is the fixed question set. Twenty questions, five per level.
var Bank = []LevelQuestions{
	{
		Level: LevelHTML,
		Title: "HTML Fundamentals",
		Questions: []Question{
			{ID: "1", Prompt: "What does HTML stand for?", Options: []string{"Hyper Text Markup Language", "High Tech Modern Language", "Home Tool Markup Language", "Hyperlink and Text Markup Language"}, Correct: 0},
			{ID: "2", Prompt: "Which HTML element is used for the largest heading?", Options: []string{"<h6>", "<heading>", "<h1>", "<header>"}, Correct: 2},
			{ID: "3", Prompt: "What is the correct HTML element for inserting a line break?", Options: []string{"<break>", "<br>", "<lb>", "<newline>"}, Correct: 1},
			{ID: "4", Prompt: "Which attribute is used to provide a unique identifier for an HTML element?", Options: []string{"class", "name", "id", "key"}, Correct: 2},
			{ID: "5", Prompt: "Which HTML element is used to define internal CSS?", Options: []string{"<css>", "<script>", "<style>", "<link>"}, Correct: 2},
		},
	},
	{
		Level: LevelCSS,
		Title: "CSS Styling",
		Questions: []Question{
			{ID: "1", Prompt: "What does CSS stand for?", Options: []string{"Cascading Style Sheets", "Computer Style Sheets", "Creative Style Sheets", "Colorful Style Sheets"}, Correct: 0},
			{ID: "2", Prompt: "Which property is used to change the background color?", Options: []string{"color", "bgcolor", "background-color", "background"}, Correct: 2},
			{ID: "3", Prompt: "How do you select an element with id 'demo'?", Options: []string{".demo", "#demo", "demo", "*demo"}, Correct: 1},
			{ID: "4", Prompt: "Which property is used to change the text color of an element?", Options: []string{"text-color", "fgcolor", "color", "font-color"}, Correct: 2},
			{ID: "5", Prompt: "What is the default value of the position property?", Options: []string{"relative", "fixed", "absolute", "static"}, Correct: 3},
		},
	},
	{
		Level: LevelJavaScript,
		Title: "JavaScript Logic",
		Questions: []Question{
			{ID: "1", Prompt: "Which of the following is a JavaScript data type?", Options: []string{"string", "boolean", "number", "All of the above"}, Correct: 3},
			{ID: "2", Prompt: "How do you declare a JavaScript variable?", Options: []string{"var myVar;", "variable myVar;", "v myVar;", "declare myVar;"}, Correct: 0},
			{ID: "3", Prompt: "Which method is used to add an element to the end of an array?", Options: []string{"push()", "add()", "append()", "insert()"}, Correct: 0},
			{ID: "4", Prompt: "What is the correct way to write a JavaScript array?", Options: []string{"var colors = 'red', 'green', 'blue'", "var colors = (1:'red', 2:'green', 3:'blue')", "var colors = ['red', 'green', 'blue']", "var colors = 1 = ('red'), 2 = ('green'), 3 = ('blue')"}, Correct: 2},
			{ID: "5", Prompt: "Which operator is used to assign a value to a variable?", Options: []string{"*", "=", "x", "-"}, Correct: 1},
		},
	},
	{
		Level: LevelReact,
		Title: "React Framework",
		Questions: []Question{
			{ID: "1", Prompt: "What is React?", Options: []string{"A JavaScript library for building user interfaces", "A database management system", "A server-side framework", "A CSS framework"}, Correct: 0},
			{ID: "2", Prompt: "Which method is used to render elements in React?", Options: []string{"render()", "display()", "show()", "ReactDOM.render()"}, Correct: 3},
			{ID: "3", Prompt: "What is JSX?", Options: []string{"A JavaScript extension syntax", "A CSS preprocessor", "A database query language", "A server framework"}, Correct: 0},
			{ID: "4", Prompt: "Which hook is used to manage state in functional components?", Options: []string{"useEffect", "useState", "useContext", "useReducer"}, Correct: 1},
			{ID: "5", Prompt: "What is the virtual DOM?", Options: []string{"A copy of the real DOM kept in memory", "A new HTML standard", "A CSS framework", "A JavaScript engine"}, Correct: 0},
		},
	},
}

// FindQuestion looks up a question by level and ID.
func FindQuestion(level Level, questionID string) (Question, bool) {
	for _, lq := range Bank {
		if lq.Level != level {
			continue
		}
		for _, q := range lq.Questions {
			if q.ID == questionID {
				return q, true
			}
		}
	}
	return Question{}, false
}
