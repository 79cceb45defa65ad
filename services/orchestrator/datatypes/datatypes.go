// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the domain model shared by the supplement
// pipeline: jobs, photo evidence, estimate interpretations, scope gaps,
// supplement strategies, and review results.
//
// Every model-facing type carries validator tags and a Validate method.
// Agent output is decoded into these types and validated before the
// pipeline accepts it; a validation failure triggers exactly one repair
// retry at the invocation layer.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// pipelineValidate is the package-level validator instance shared by all
// Validate methods. validator.Validate is safe for concurrent use.
var pipelineValidate *validator.Validate

func init() {
	pipelineValidate = validator.New(validator.WithRequiredStructEnabled())
}

// Validator exposes the shared validator instance for callers that need
// to register additional rules or validate foreign structs.
func Validator() *validator.Validate {
	return pipelineValidate
}
