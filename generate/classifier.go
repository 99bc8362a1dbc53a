package generate

import (
	"context"
	"strings"

	"github.com/teranos/shopper/classifier"
	"github.com/teranos/shopper/errors"
)

// TrainClassifier teaches c one class per product, named after the product.
// Examples are the name and, when present, the name followed by its description.
func TrainClassifier(ctx context.Context, c classifier.Trainable, products []DescribedProduct) error {
	if len(products) == 0 {
		return errors.NewInvalidRequestError("no products to train the classifier on")
	}
	for _, p := range products {
		name := strings.TrimSpace(p.Name())
		if name == "" {
			continue
		}
		examples := []string{name}
		if desc := strings.TrimSpace(p.Descriptions); desc != "" {
			examples = append(examples, name+". "+desc)
		}
		c.AddClass(name, examples...)
	}
	return c.Train(ctx)
}
