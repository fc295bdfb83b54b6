package prompt

// Summary is a prompt without its body and keyword lists.
// Used by list operations to keep responses small.
type Summary struct {
	ID       string   `json:"id"`
	Topic    string   `json:"topic"`
	Model    string   `json:"model"`
	Tags     []string `json:"tags,omitempty"`
	Status   Status   `json:"status"`
	Revision int      `json:"revision"`

	// PositiveCount and NegativeCount are the collection sizes
	PositiveCount int `json:"positive_count"`
	NegativeCount int `json:"negative_count"`

	// BodyChars is the body length in runes
	BodyChars int `json:"body_chars"`

	// TokensEstimate is the estimated token count of the composed prompt
	TokensEstimate int `json:"tokens_estimate"`

	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// ToSummary strips the content from a prompt.
func (p *Prompt) ToSummary() Summary {
	return Summary{
		ID:             p.ID,
		Topic:          p.Topic,
		Model:          p.Model,
		Tags:           p.Tags,
		Status:         p.Status,
		Revision:       p.Revision,
		PositiveCount:  len(p.Positive),
		NegativeCount:  len(p.Negative),
		BodyChars:      CountChars(p.Body),
		TokensEstimate: EstimateTokens(Compose(p)),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		DeletedAt:      p.DeletedAt,
	}
}
