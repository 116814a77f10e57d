package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/strategy"
)

func TestClassifyName(t *testing.T) {
	setTestConfig(t)

	out := classifyName("Golden Chick Enterprises LLC", "TX")
	assert.Equal(t, model.EntityBusiness, out.Classification.Type)
	assert.Equal(t, []string{strategy.BusinessRegistry, strategy.GooglePlaces}, out.Strategy.Primary)
	assert.InDelta(t, 0.8, out.Strategy.ConfidenceThreshold, 1e-9)

	out = classifyName("Smith, John", "")
	assert.Equal(t, model.EntityIndividual, out.Classification.Type)
	assert.InDelta(t, 0.7, out.Strategy.ConfidenceThreshold, 1e-9)
}

func TestClassifyName_NoConfig(t *testing.T) {
	prev := cfg
	cfg = nil
	defer func() { cfg = prev }()

	out := classifyName("Jane Doe", "CA")
	assert.Equal(t, model.EntityIndividual, out.Classification.Type)
}
