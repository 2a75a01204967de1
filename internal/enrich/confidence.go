package enrich

import (
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/pkg/utils"
)

// Weights of the combined confidence score.
const (
	entityWeight         = 0.4
	relationshipWeight   = 0.4
	classificationWeight = 0.2
)

// Confidence combines per-item confidences into one score in [0,1]:
// 0.4*mean(entities) + 0.4*mean(relationships) + 0.2*mean(category confidence)/100.
func Confidence(entities []models.Entity, rels []models.Relationship, categories []models.CategoryScore) float64 {
	var entityScore, relScore, classScore float64
	if len(entities) > 0 {
		for _, e := range entities {
			entityScore += e.Confidence
		}
		entityScore /= float64(len(entities))
	}
	if len(rels) > 0 {
		for _, r := range rels {
			relScore += r.Confidence
		}
		relScore /= float64(len(rels))
	}
	if len(categories) > 0 {
		for _, c := range categories {
			classScore += c.Confidence
		}
		classScore = classScore / float64(len(categories)) / 100
	}
	return utils.Clamp01(entityWeight*entityScore + relationshipWeight*relScore + classificationWeight*classScore)
}
