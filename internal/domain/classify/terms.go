package classify

// Built-in vocabularies for the AI-in-education adoption screen. A trailing *
// matches any word continuation; spaces match any run of whitespace.

// DefaultDomainTerms mark the technology under study.
var DefaultDomainTerms = []string{ //nolint:gochecknoglobals // read-only defaults
	"artificial intelligence", "machine learning", "deep learning",
	"intelligent tutoring", "chatbot", "ChatGPT", "GPT-4", "GPT-3",
	"large language model", "LLM", "natural language processing", "NLP",
	"automated grading", "adaptive learning", "conversational AI",
	"AI tutor", "AI agent", "agentic AI", "neural network",
	"computer vision", "generative AI", "Copilot", "Gemini", "Claude", "Bard",
	"reinforcement learning", "intelligent agent", "recommendation system",
	"predictive model", "text mining", "sentiment analysis",
	"speech recognition", "virtual assistant", "robot*", "AI",
}

// DefaultContextTerms mark the educational setting.
var DefaultContextTerms = []string{ //nolint:gochecknoglobals // read-only defaults
	"education", "student", "teacher", "instructor", "faculty", "professor",
	"university", "college", "school", "classroom", "pedagogy", "learning",
	"academic", "K-12", "higher education", "undergraduate", "graduate",
	"curriculum", "MOOC", "e-learning", "online learning", "blended learning",
	"tutoring", "learner", "teaching", "coursework", "semester",
}

// DefaultOutcomeTerms mark adoption and acceptance constructs.
var DefaultOutcomeTerms = []string{ //nolint:gochecknoglobals // read-only defaults
	"adopt*", "acceptance", "intention", "TAM", "UTAUT",
	"technology acceptance", "perceived usefulness", "perceived ease",
	"self-efficacy", "behavioral intention", "trust", "resistance",
	"usage", "satisfaction", "continuance", "willingness", "readiness",
	"attitude", "motivation", "engagement", "barrier",
}
