package catalog

import (
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/locale"
)

func sectionAttr(section string, kind cms.Kind) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("section", section),
		attribute.String("cms.type", kind.String()),
	}
}

// decodeAll maps objects to typed views, skipping duplicates by id and objects that fail to decode.
func decodeAll[T any](logger *zap.Logger, objects []cms.Object, decode func(cms.Object) (T, error)) []T {
	out := make([]T, 0, len(objects))
	seen := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		if obj.ID != "" {
			if _, dup := seen[obj.ID]; dup {
				continue
			}
			seen[obj.ID] = struct{}{}
		}
		item, err := decode(obj)
		if err != nil {
			logger.Warn("catalog: skipping undecodable object",
				zap.String("id", obj.ID),
				zap.String("type", obj.Type.String()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, item)
	}
	return out
}

func (g *Gateway) decodeProducts(objects []cms.Object, code locale.Code) []cms.Product {
	products := decodeAll(g.logger, objects, cms.DecodeProduct)
	for i := range products {
		products[i] = products[i].Localize(code.String())
	}
	return products
}

func (g *Gateway) decodeCategories(objects []cms.Object) []cms.Category {
	return decodeAll(g.logger, objects, cms.DecodeCategory)
}

func (g *Gateway) decodeArticles(objects []cms.Object) []cms.Article {
	return decodeAll(g.logger, objects, cms.DecodeArticle)
}

func (g *Gateway) decodeAthletes(objects []cms.Object) []cms.Athlete {
	return decodeAll(g.logger, objects, cms.DecodeAthlete)
}
