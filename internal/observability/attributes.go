// Package observability provides the service metrics.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	attrMethod    = "method"
	attrRoute     = "route"
	attrStatus    = "status"
	attrExecutor  = "executor"
	attrSuccess   = "success"
	attrModule    = "module"
	attrAlgorithm = "algorithm"
	attrOutcome   = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

// routeAttr drops the method from a mux pattern ("GET /methods/{category}");
// the method is its own attribute.
func routeAttr(pattern string) attribute.KeyValue {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}
	return attribute.String(attrRoute, pattern)
}

// statusAttr groups codes into classes: 2xx, 4xx, 5xx.
func statusAttr(code int) attribute.KeyValue {
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func executorAttr(executor string) attribute.KeyValue {
	return attribute.String(attrExecutor, executor)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// moduleAttr keeps only the top-level package so the label stays bounded
// as catalog modules are added.
func moduleAttr(module string) attribute.KeyValue {
	top, _, _ := strings.Cut(module, ".")
	return attribute.String(attrModule, top)
}

func algorithmAttr(algorithm string) attribute.KeyValue {
	return attribute.String(attrAlgorithm, algorithm)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}
