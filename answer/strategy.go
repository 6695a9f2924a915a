package answer

import "github.com/armatrix/toolhost/auth"

// Category classifies a question. Classification itself happens upstream.
type Category string

const (
	CategoryGeneral    Category = "general"
	CategoryCode       Category = "code"
	CategoryMath       Category = "math"
	CategoryInterview  Category = "interview"
	CategoryDrive      Category = "drive"
	CategoryGitHub     Category = "github"
	CategorySlack      Category = "slack"
	CategoryNotion     Category = "notion"
	CategoryFilesystem Category = "filesystem"
)

// Style selects category-specific post-processing.
type Style int

const (
	StylePlain Style = iota
	StyleCode
	StyleMath
	StyleInterview
)

// Strategy is how one category of question is answered.
type Strategy struct {
	Category      Category
	SystemPrompt  string
	RequiresTools bool
	Service       auth.ServiceID
	MaxTokens     int
	Temperature   float64
	Style         Style
}

const baseRules = "Answer directly. Do not open with pleasantries or close by offering more help."

// DefaultStrategies returns the built-in strategy table.
func DefaultStrategies() map[Category]Strategy {
	service := func(c Category, id auth.ServiceID, what string) Strategy {
		return Strategy{
			Category: c,
			SystemPrompt: "You answer questions about the user's " + what + " in " + id.DisplayName() +
				". Base the answer on the retrieved context; say so plainly when it does not contain the answer. " + baseRules,
			RequiresTools: true,
			Service:       id,
			MaxTokens:     800,
			Temperature:   0.2,
		}
	}
	return map[Category]Strategy{
		CategoryGeneral: {
			Category:     CategoryGeneral,
			SystemPrompt: "You are a concise assistant. " + baseRules,
			MaxTokens:    600,
			Temperature:  0.5,
		},
		CategoryCode: {
			Category: CategoryCode,
			SystemPrompt: "You are a senior engineer. Give working code in fenced blocks labelled with the language, " +
				"followed by a short explanation. " + baseRules,
			MaxTokens:   1500,
			Temperature: 0.2,
			Style:       StyleCode,
		},
		CategoryMath: {
			Category:     CategoryMath,
			SystemPrompt: "Solve step by step, showing each calculation on its own line, and finish with the result. " + baseRules,
			MaxTokens:    800,
			Temperature:  0,
			Style:        StyleMath,
		},
		CategoryInterview: {
			Category: CategoryInterview,
			SystemPrompt: "Answer as a confident candidate in a job interview: first person, specific, " +
				"at most three short paragraphs. " + baseRules,
			MaxTokens:   500,
			Temperature: 0.6,
			Style:       StyleInterview,
		},
		CategoryDrive:      service(CategoryDrive, auth.GoogleDrive, "documents"),
		CategoryGitHub:     service(CategoryGitHub, auth.GitHub, "repositories and issues"),
		CategorySlack:      service(CategorySlack, auth.Slack, "messages and channels"),
		CategoryNotion:     service(CategoryNotion, auth.Notion, "pages and databases"),
		CategoryFilesystem: service(CategoryFilesystem, auth.Filesystem, "local files"),
	}
}
