package generate

import (
	"github.com/teranos/shopper/catalog"
)

// DescribedProduct is one line of describe output
type DescribedProduct struct {
	Product      catalog.Record `json:"product"`
	Descriptions string         `json:"descriptions"`
}

// ID returns the catalog product id
func (d DescribedProduct) ID() string { return d.Product.ID() }

// Name returns the catalog product name
func (d DescribedProduct) Name() string { return d.Product.Name() }

// RecommendedProduct pairs the model's generic answer with the catalog product it was matched to
type RecommendedProduct struct {
	// RealProductID holds the simplified generic name the model recommended
	RealProductID string           `json:"real_product_id"`
	ProductName   DescribedProduct `json:"product_name"`
}

// Recommendation is one line of recommend output
type Recommendation struct {
	Product            DescribedProduct   `json:"product"`
	RecommendedProduct RecommendedProduct `json:"recommended_product"`
}

// ProductRecommendations groups every recommendation made for one catalog product
type ProductRecommendations struct {
	Product         catalog.Record       `json:"product"`
	Recommendations []RecommendedProduct `json:"recommendations"`
}

// FormattedRecommendation is one line of format output
type FormattedRecommendation struct {
	Product        ProductRecommendations `json:"product"`
	Recommendation string                 `json:"recommendation"`
}

// QAPair is one line of qa output
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// EvalResult holds the four answers to one evaluation question
type EvalResult struct {
	Question string `json:"question"`
	// Plain answers the question unchanged
	Plain EvalAnswers `json:"plain"`
	// Engineered answers the question with the request to cite product ids
	Engineered EvalAnswers `json:"engineered"`
}

// EvalAnswers pairs the answer without a system prompt with the product-expert one
type EvalAnswers struct {
	WithoutSystem string `json:"without_system_prompt"`
	WithSystem    string `json:"with_system_prompt"`
}
